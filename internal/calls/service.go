package calls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"voice-platform/internal/kv"
	"voice-platform/internal/pricing"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/metrics"
)

// Lookup reports whether getOrCreate found an existing session or initialized a new one.
type Lookup string

const (
	LookupCreated Lookup = "created"
	LookupFound   Lookup = "found"
)

// ApplyResult is the outcome of one ApplyEvent call.
type ApplyResult struct {
	Session     CallSession
	Lookup      Lookup
	Disposition Disposition
}

// Anomaly is an event that was accepted but not applied.
type Anomaly string

const (
	AnomalyLateEvent    Anomaly = "late_event"
	AnomalyUnknownEvent Anomaly = "unknown_event"
)

// AnomalyLogger receives accepted-but-ignored events. Failures are logged and otherwise ignored.
type AnomalyLogger interface {
	LogSessionAnomaly(ctx context.Context, tenantID, sessionID string, kind Anomaly, eventName string) error
}

// CallSettler is handed every session that ends, and again on every replayed call.ended,
// so implementations must be idempotent per session. Failures are logged and otherwise ignored.
type CallSettler interface {
	SettleCall(ctx context.Context, sess CallSession) error
}

const DefaultMaxAttempts = 5

// Service is the call session aggregator.
//
// Contract:
// - ApplyEvent is serialized per session id in-process (lock table) and across replicas
//   (conditional write on the stored version, retried up to MaxAttempts).
// - One persisted write per applied event; ignored events on an existing session write nothing.
// - Store failures surface as ErrStoreUnavailable; nothing is partially applied.
type Service struct {
	repo  *Repository
	rates pricing.Rates
	locks *lockTable
	clock func() time.Time

	MaxAttempts int
	Anomalies   AnomalyLogger
	Settlement  CallSettler
	Metrics     *metrics.Metrics
}

func NewService(repo *Repository, rates pricing.Rates) *Service {
	return &Service{
		repo:        repo,
		rates:       rates,
		locks:       newLockTable(),
		clock:       time.Now,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// ApplyEvent folds ev into its session, creating the session on first sight.
func (s *Service) ApplyEvent(ctx context.Context, ev Event) (ApplyResult, error) {
	if err := ev.validate(); err != nil {
		s.Metrics.RecordEvent(ev.Label(), "rejected")
		return ApplyResult{}, err
	}

	ts := ev.Timestamp
	if ts <= 0 {
		ts = s.clock().UnixMilli()
	}

	release := s.locks.lock(ev.SessionID)
	defer release()

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	log := logger.From(ctx).With("session_id", ev.SessionID, "event", ev.Label(), "tenant_id", ev.TenantID)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := s.applyOnce(ctx, ev, ts)
		if errors.Is(err, kv.ErrConflict) {
			s.Metrics.RecordWriteConflict()
			log.Warn("session write conflict", "attempt", attempt)
			continue
		}
		if err != nil {
			outcome := "failed"
			if errors.Is(err, ErrInvalidEvent) {
				outcome = "rejected"
				log.Warn("event rejected", "err", err)
			}
			s.Metrics.RecordEvent(ev.Label(), outcome)
			return ApplyResult{}, err
		}

		s.afterApply(ctx, ev, res)
		return res, nil
	}

	s.Metrics.RecordEvent(ev.Label(), "failed")
	return ApplyResult{}, fmt.Errorf("%w: session %s still conflicting after %d attempts", ErrStoreUnavailable, ev.SessionID, attempts)
}

func (s *Service) applyOnce(ctx context.Context, ev Event, ts int64) (ApplyResult, error) {
	sess, lookup, err := s.getOrCreate(ctx, ev, ts)
	if err != nil {
		return ApplyResult{}, err
	}
	if sess.TenantID != ev.TenantID {
		return ApplyResult{}, fmt.Errorf("%w: session %s belongs to another tenant", ErrInvalidEvent, ev.SessionID)
	}

	wasLive := sess.IsLive
	disp := sess.apply(ev, ts, s.rates)

	// A new session is persisted even when the event itself is ignored.
	if disp == DispositionApplied || lookup == LookupCreated {
		if err := s.repo.Save(ctx, &sess); err != nil {
			return ApplyResult{}, err
		}
		if lookup == LookupCreated {
			s.Metrics.SessionStarted()
		}
		if wasLive && !sess.IsLive {
			s.Metrics.SessionEnded()
		}
	}
	return ApplyResult{Session: sess, Lookup: lookup, Disposition: disp}, nil
}

// getOrCreate loads the session or initializes (without persisting) a new one.
// The caller's single Save creates it, conditional on version 0.
func (s *Service) getOrCreate(ctx context.Context, ev Event, ts int64) (CallSession, Lookup, error) {
	sess, err := s.repo.Get(ctx, ev.SessionID)
	if err == nil {
		return sess, LookupFound, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return CallSession{}, "", err
	}
	return newSession(ev.SessionID, ev.TenantID, ts), LookupCreated, nil
}

func (s *Service) afterApply(ctx context.Context, ev Event, res ApplyResult) {
	log := logger.From(ctx).With("session_id", ev.SessionID, "event", ev.Label(), "tenant_id", ev.TenantID)

	switch res.Disposition {
	case DispositionApplied:
		s.Metrics.RecordEvent(ev.Label(), "applied")
		log.Debug("event applied", "lookup", string(res.Lookup), "session_status", string(res.Session.SessionStatus))
		if ev.Type == EventCallEnded {
			s.settle(ctx, res.Session)
		}
	case DispositionUnknown:
		s.Metrics.RecordEvent(ev.Label(), "ignored")
		log.Warn("unknown event type ignored", "name", ev.Name)
		s.reportAnomaly(ctx, ev, AnomalyUnknownEvent)
	case DispositionLate:
		s.Metrics.RecordEvent(ev.Label(), "ignored")
		log.Warn("event after call ended ignored")
		s.reportAnomaly(ctx, ev, AnomalyLateEvent)
		// A replayed call.ended retries settlement; the settler is idempotent per session.
		if ev.Type == EventCallEnded && !res.Session.IsLive {
			s.settle(ctx, res.Session)
		}
	}
}

func (s *Service) settle(ctx context.Context, sess CallSession) {
	if s.Settlement == nil {
		return
	}
	if err := s.Settlement.SettleCall(ctx, sess); err != nil {
		logger.From(ctx).Warn("call settlement failed", "session_id", sess.ID, "tenant_id", sess.TenantID, "err", err)
	}
}

func (s *Service) reportAnomaly(ctx context.Context, ev Event, kind Anomaly) {
	if s.Anomalies == nil {
		return
	}
	if err := s.Anomalies.LogSessionAnomaly(ctx, ev.TenantID, ev.SessionID, kind, ev.Name); err != nil {
		logger.From(ctx).Warn("anomaly audit failed", "session_id", ev.SessionID, "err", err)
	}
}

// Get returns one session; ErrNotFound when absent.
func (s *Service) Get(ctx context.Context, id string) (CallSession, error) {
	if id == "" {
		return CallSession{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ListActive returns live sessions, newest first. An empty tenantID lists every tenant.
func (s *Service) ListActive(ctx context.Context, tenantID string) ([]CallSession, error) {
	all, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return sortNewestFirst(filterTenant(all, tenantID)), nil
}

// ListByTenant returns every session (live and finished) of one tenant, newest first.
func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]CallSession, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortNewestFirst(filterTenant(all, tenantID)), nil
}

// ListAll returns every stored session, newest first.
func (s *Service) ListAll(ctx context.Context) ([]CallSession, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortNewestFirst(all), nil
}

func filterTenant(in []CallSession, tenantID string) []CallSession {
	if tenantID == "" {
		return in
	}
	out := make([]CallSession, 0, len(in))
	for _, c := range in {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out
}

func sortNewestFirst(in []CallSession) []CallSession {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].StartTime == in[j].StartTime {
			return in[i].ID < in[j].ID
		}
		return in[i].StartTime > in[j].StartTime
	})
	return in
}
