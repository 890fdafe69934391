package replication

import (
	"errors"

	"shadow-sync/pkg/converter"
)

var (
	ErrSlotNotFound       = errors.New("replication slot not found")
	ErrMonitorUnavailable = errors.New("replication monitor unavailable")
)

// Status is a point-in-time view of the logical replication slot feeding the secondary.
type Status struct {
	SlotName          string  `json:"slot_name" db:"slot_name"`
	Active            bool    `json:"active" db:"active"`
	RestartLSN        *string `json:"restart_lsn" db:"restart_lsn"`
	ConfirmedFlushLSN *string `json:"confirmed_flush_lsn" db:"confirmed_flush_lsn"`
	LagBytes          int64   `json:"lag_bytes" db:"lag_bytes"`
}

func (s *Status) LagMegabytes() float64 {
	return converter.BytesToMegabytes(s.LagBytes)
}

// PositionOr returns the slot's confirmed flush position, or fallback when the slot has not
// confirmed one yet.
func (s *Status) PositionOr(fallback *string) *string {
	if s == nil || s.ConfirmedFlushLSN == nil || *s.ConfirmedFlushLSN == "" {
		return fallback
	}
	position := *s.ConfirmedFlushLSN
	return &position
}
