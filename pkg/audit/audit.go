// Package audit records every follower-removal attempt the relay forwards.
//
// The log is append-only: entries are never updated or deleted by the running
// system (retention and rotation are operational concerns). An entry carries
// operational facts only and must never contain credential material.
package audit

import (
	"context"
	"fmt"
	"time"

	"xrelay/pkg/config"
	"xrelay/pkg/errors"
)

// Entry is the immutable record of one removal attempt.
type Entry struct {
	Timestamp        time.Time   `json:"timestamp"`
	ActingUserID     string      `json:"acting_user_id"`
	TargetFollowerID string      `json:"target_follower_id"`
	Succeeded        bool        `json:"succeeded"`
	ErrorKind        errors.Kind `json:"error_kind,omitempty"`
	RequestID        string      `json:"request_id,omitempty"`
}

// Sink is an append-only audit destination. Append must be safe for
// concurrent use; individual entries must never interleave.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
	Close() error
}

// NewSink creates the sink selected by configuration.
func NewSink(cfg *config.AuditConfig) (Sink, error) {
	switch cfg.Backend {
	case "file":
		return NewFileSink(cfg.Path)
	case "sqlite":
		return NewSQLiteSink(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
