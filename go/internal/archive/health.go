package archive

import (
	"fmt"
	"time"
)

type HealthStatus struct {
	Healthy       bool      `json:"healthy"`
	NATSConnected *bool     `json:"nats_connected,omitempty"`
	Processed     uint64    `json:"records_archived"`
	Failed        uint64    `json:"records_failed"`
	Dropped       uint64    `json:"records_dropped"`
	Pending       int       `json:"pending_records"`
	LastArchived  time.Time `json:"last_archived_time"`
	Errors        []string  `json:"errors"`
}

type connectionChecker interface {
	Connected() bool
}

// Health reports the worker counters and the state of the backing store
func (a *Async) Health() HealthStatus {
	processed, failed, dropped, pending, last := a.Stats()
	status := HealthStatus{
		Healthy:      true,
		Processed:    processed,
		Failed:       failed,
		Dropped:      dropped,
		Pending:      pending,
		LastArchived: last,
		Errors:       []string{},
	}

	if cc, ok := a.next.(connectionChecker); ok {
		connected := cc.Connected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if pending*10 >= cap(a.queue)*8 {
		status.Errors = append(status.Errors, fmt.Sprintf("high pending record count: %d", pending))
	}
	return status
}
