package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"shadow-sync/internal/metrics"
	"shadow-sync/pkg/log"
)

const DefaultLagWarningMB = 100.0

// Monitor checks the health of the replication slot feeding the secondary. Health checks are
// advisory: they never retry and report any failure as unhealthy.
type Monitor struct {
	querier        SlotQuerier
	slotName       string
	lagWarningMB   float64
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

type MonitorOption func(*Monitor)

func WithLagWarningMB(mb float64) MonitorOption {
	return func(m *Monitor) { m.lagWarningMB = mb }
}

func WithMetrics(mt *metrics.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = mt }
}

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) MonitorOption {
	return func(m *Monitor) { m.circuitBreaker = cb }
}

func NewMonitor(querier SlotQuerier, slotName string, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		querier:      querier,
		slotName:     slotName,
		lagWarningMB: DefaultLagWarningMB,
		logger: log.Logger.With().
			Str("component", "replication_monitor").
			Str("slot", slotName).
			Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.circuitBreaker == nil {
		m.circuitBreaker = newCircuitBreaker(slotName)
	}
	return m
}

//nolint:mnd
func newCircuitBreaker(slotName string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "replication_slot_" + slotName,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker changed state")
		},
	})
}

func (m *Monitor) SlotName() string {
	return m.slotName
}

// CheckHealth reports whether the slot exists and is active. The status is nil when the slot is
// missing or could not be queried. High lag is only a warning and keeps the slot healthy.
func (m *Monitor) CheckHealth(ctx context.Context) (bool, *Status) {
	status, err := m.query(ctx)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			m.logger.Error().Msg("Replication slot not found, check the subscription configuration")
		} else {
			m.logger.Error().Err(err).Msg("Failed to check replication health")
		}
		m.metrics.ReplicationObserved(m.slotName, false, false, false, 0)
		return false, nil
	}

	if !status.Active {
		m.logger.Error().Int64("lag_bytes", status.LagBytes).Msg("Replication slot is inactive")
		m.metrics.ReplicationObserved(m.slotName, true, false, false, status.LagBytes)
		return false, status
	}

	lagMB := status.LagMegabytes()
	if lagMB > m.lagWarningMB {
		m.logger.Warn().
			Float64("lag_mb", lagMB).
			Float64("threshold_mb", m.lagWarningMB).
			Msg("High replication lag detected")
	}

	m.logger.Info().Float64("lag_mb", lagMB).Msg("Replication healthy")
	m.metrics.ReplicationObserved(m.slotName, true, true, true, status.LagBytes)
	return true, status
}

// query runs the slot lookup through the circuit breaker. A missing slot is an answer, not a
// transport failure, so it does not count against the breaker.
func (m *Monitor) query(ctx context.Context) (*Status, error) {
	result, err := m.circuitBreaker.Execute(func() (interface{}, error) {
		status, err := m.querier.QuerySlot(ctx, m.slotName)
		if errors.Is(err, ErrSlotNotFound) {
			return nil, nil
		}
		return status, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrMonitorUnavailable, err)
		}
		return nil, err
	}

	status, _ := result.(*Status)
	if status == nil {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, m.slotName)
	}
	return status, nil
}
