// Package relay coordinates follower operations: it validates caller input,
// paces and dispatches upstream calls, and couples every removal attempt to
// an audit entry.
package relay

import (
	"context"
	"time"

	"xrelay/pkg/audit"
	"xrelay/pkg/config"
	"xrelay/pkg/errors"
	"xrelay/pkg/logger"
	"xrelay/pkg/metrics"
	"xrelay/pkg/ratelimit"
	"xrelay/pkg/xcom"
)

// UpstreamClient is the slice of the upstream client the service needs.
type UpstreamClient interface {
	ListFollowers(ctx context.Context, creds xcom.CredentialBundle, userID, cursor string) (*xcom.FollowerPage, error)
	RemoveFollower(ctx context.Context, creds xcom.CredentialBundle, targetUserID string) error
}

// RemovalOutcome is the per-target result of a removal batch. Outcomes are
// returned in input order, exactly one per target.
type RemovalOutcome struct {
	TargetFollowerID string      `json:"target_follower_id"`
	Succeeded        bool        `json:"succeeded"`
	ErrorKind        errors.Kind `json:"error_kind,omitempty"`
}

// Service is the relay core shared by all requests. It holds no credential
// state; bundles arrive with each call and die with it.
type Service struct {
	client   UpstreamClient
	sink     audit.Sink
	limiter  ratelimit.Limiter
	maxBatch int
	logger   logger.Logger
}

// NewService wires the relay core. A nil limiter disables pacing.
func NewService(client UpstreamClient, sink audit.Sink, limiter ratelimit.Limiter, cfg *config.RelayConfig, log logger.Logger) *Service {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Service{
		client:   client,
		sink:     sink,
		limiter:  limiter,
		maxBatch: cfg.MaxBatchSize,
		logger:   log,
	}
}

// ListFollowers validates the bundle and forwards one listing page. The
// cursor travels verbatim in both directions.
func (s *Service) ListFollowers(ctx context.Context, creds xcom.CredentialBundle, userID, cursor string) (*xcom.FollowerPage, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := s.client.ListFollowers(ctx, creds, userID, cursor)
	if err != nil {
		metrics.UpstreamCallsTotal.WithLabelValues("Followers", string(errors.KindOf(err))).Inc()
		return nil, err
	}
	metrics.UpstreamCallsTotal.WithLabelValues("Followers", "ok").Inc()
	return page, nil
}

// RemoveFollowers dispatches a batch of removals strictly sequentially.
// A rejected batch (bad credentials, empty, over the bound) performs zero
// upstream calls. Item failures are recorded and the batch continues; the
// full outcome set comes back to the caller.
//
// Caller disconnect stops new items from starting but lets the in-flight
// upstream call complete, so its outcome and audit entry are still
// produced. Outcomes accumulated before cancellation are returned alongside
// the context error.
func (s *Service) RemoveFollowers(ctx context.Context, creds xcom.CredentialBundle, actingUserID string, targets []string) ([]RemovalOutcome, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errors.New(errors.KindBatchTooLarge, 0, "batch is empty")
	}
	if len(targets) > s.maxBatch {
		return nil, errors.Newf(errors.KindBatchTooLarge, 0, "batch of %d exceeds maximum of %d", len(targets), s.maxBatch)
	}

	requestID := requestIDFrom(ctx)
	outcomes := make([]RemovalOutcome, 0, len(targets))

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return outcomes, err
		}

		// The upstream call must not be torn down mid-flight by a caller
		// disconnect; the per-call timeout still bounds it.
		callCtx := context.WithoutCancel(ctx)
		err := s.client.RemoveFollower(callCtx, creds, target)

		outcome := RemovalOutcome{TargetFollowerID: target, Succeeded: err == nil}
		result := "ok"
		if err != nil {
			outcome.ErrorKind = errors.KindOf(err)
			result = string(outcome.ErrorKind)
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"acting_user_id":     actingUserID,
				"target_follower_id": target,
			}).Warn("Follower removal failed")
		}
		metrics.UpstreamCallsTotal.WithLabelValues("RemoveFollower", result).Inc()
		metrics.RemovalsTotal.WithLabelValues(result).Inc()

		s.writeAuditEntry(callCtx, audit.Entry{
			Timestamp:        time.Now().UTC(),
			ActingUserID:     actingUserID,
			TargetFollowerID: target,
			Succeeded:        outcome.Succeeded,
			ErrorKind:        outcome.ErrorKind,
			RequestID:        requestID,
		})

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// writeAuditEntry appends one entry. A sink failure is surfaced through the
// log and the failure counter but never changes the removal outcome.
func (s *Service) writeAuditEntry(ctx context.Context, entry audit.Entry) {
	if err := s.sink.Append(ctx, entry); err != nil {
		metrics.AuditAppendFailuresTotal.Inc()
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"acting_user_id":     entry.ActingUserID,
			"target_follower_id": entry.TargetFollowerID,
		}).Error("Failed to write audit entry")
	}
}

type requestIDKey struct{}

// WithRequestID attaches the request id the HTTP layer assigned, so audit
// entries can be correlated with access logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
