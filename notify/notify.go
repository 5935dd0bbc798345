// Package notify delivers removed-layout reports to configured backends.
//
// The monitor emits at most one Report per cycle. Implementations: SMTP
// (one message per recipient, failures isolated per recipient), Webhook
// (JSON POST with retry), Stdout (JSON lines for development). Router
// fans a report out to several sinks.
package notify

import (
	"context"
	"time"

	"github.com/hazyhaar/laywatch/layout"
)

// Report describes the layouts that disappeared during one cycle.
type Report struct {
	Collection string         `json:"collection"`
	Removed    []layout.Entry `json:"removed"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Sink delivers removal reports.
type Sink interface {
	SendRemoved(ctx context.Context, r Report) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
