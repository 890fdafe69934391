package replication

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSlotQuerier struct {
	mock.Mock
}

func (m *MockSlotQuerier) QuerySlot(ctx context.Context, slotName string) (*Status, error) {
	args := m.Called(ctx, slotName)
	status, _ := args.Get(0).(*Status)
	return status, args.Error(1)
}

func lsn(v string) *string { return &v }

const testSlot = "hidden_instance_sub"

func TestMonitor_CheckHealth(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		status        *Status
		err           error
		expectHealthy bool
		expectStatus  bool
	}{
		{
			name:          "active slot with small lag is healthy",
			status:        &Status{SlotName: testSlot, Active: true, ConfirmedFlushLSN: lsn("0/3000060"), LagBytes: 1024},
			expectHealthy: true,
			expectStatus:  true,
		},
		{
			name:          "high lag warns but stays healthy",
			status:        &Status{SlotName: testSlot, Active: true, LagBytes: 500 << 20},
			expectHealthy: true,
			expectStatus:  true,
		},
		{
			name:          "inactive slot is unhealthy but returns its status",
			status:        &Status{SlotName: testSlot, Active: false, LagBytes: 42},
			expectHealthy: false,
			expectStatus:  true,
		},
		{
			name:          "missing slot is unhealthy without status",
			err:           fmt.Errorf("%w: %s", ErrSlotNotFound, testSlot),
			expectHealthy: false,
			expectStatus:  false,
		},
		{
			name:          "query failure is unhealthy without status",
			err:           errors.New("connection refused"),
			expectHealthy: false,
			expectStatus:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := new(MockSlotQuerier)
			querier.On("QuerySlot", mock.Anything, testSlot).Return(tt.status, tt.err)
			monitor := NewMonitor(querier, testSlot)

			healthy, status := monitor.CheckHealth(ctx)

			assert.Equal(t, tt.expectHealthy, healthy)
			if tt.expectStatus {
				require.NotNil(t, status)
				assert.Equal(t, tt.status.LagBytes, status.LagBytes)
			} else {
				assert.Nil(t, status)
			}
			querier.AssertExpectations(t)
		})
	}
}

func TestMonitor_LagThreshold(t *testing.T) {
	status := &Status{SlotName: testSlot, Active: true, LagBytes: 150 << 20}
	assert.InDelta(t, 150.0, status.LagMegabytes(), 0.0001)

	querier := new(MockSlotQuerier)
	querier.On("QuerySlot", mock.Anything, testSlot).Return(status, nil)
	monitor := NewMonitor(querier, testSlot, WithLagWarningMB(200))

	healthy, got := monitor.CheckHealth(context.Background())

	assert.True(t, healthy)
	assert.Same(t, status, got)
}

func TestMonitor_CircuitBreaker(t *testing.T) {
	newBreaker := func() *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "test_breaker",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 2
			},
		})
	}

	t.Run("stops querying once the breaker opens", func(t *testing.T) {
		querier := new(MockSlotQuerier)
		querier.On("QuerySlot", mock.Anything, testSlot).Return(nil, errors.New("timeout")).Times(2)
		monitor := NewMonitor(querier, testSlot, WithCircuitBreaker(newBreaker()))

		for range 4 {
			healthy, status := monitor.CheckHealth(context.Background())
			assert.False(t, healthy)
			assert.Nil(t, status)
		}

		querier.AssertNumberOfCalls(t, "QuerySlot", 2)
	})

	t.Run("missing slot does not trip the breaker", func(t *testing.T) {
		querier := new(MockSlotQuerier)
		querier.On("QuerySlot", mock.Anything, testSlot).Return(nil, ErrSlotNotFound)
		monitor := NewMonitor(querier, testSlot, WithCircuitBreaker(newBreaker()))

		for range 4 {
			healthy, _ := monitor.CheckHealth(context.Background())
			assert.False(t, healthy)
		}

		querier.AssertNumberOfCalls(t, "QuerySlot", 4)
	})
}

func TestStatus_PositionOr(t *testing.T) {
	previous := lsn("0/1")

	t.Run("returns the confirmed flush position", func(t *testing.T) {
		status := &Status{Active: true, ConfirmedFlushLSN: lsn("0/16B3748")}

		position := status.PositionOr(previous)

		require.NotNil(t, position)
		assert.Equal(t, "0/16B3748", *position)
		assert.NotSame(t, status.ConfirmedFlushLSN, position)
	})

	t.Run("falls back when the slot has no position", func(t *testing.T) {
		assert.Same(t, previous, (&Status{Active: true}).PositionOr(previous))
		assert.Same(t, previous, (&Status{Active: true, ConfirmedFlushLSN: lsn("")}).PositionOr(previous))
	})

	t.Run("falls back without a status", func(t *testing.T) {
		var status *Status

		assert.Same(t, previous, status.PositionOr(previous))
		assert.Nil(t, status.PositionOr(nil))
	})
}
