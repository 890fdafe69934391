package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, cmd Command) (*CommandResult, error) {
	args := m.Called(ctx, cmd)
	result, _ := args.Get(0).(*CommandResult)
	return result, args.Error(1)
}
