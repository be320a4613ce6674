package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-platform/internal/audit"
	"voice-platform/internal/kv"
	"voice-platform/internal/pricing"
	"voice-platform/pkg/metrics"
)

const t0 = int64(1_760_000_000_000)

func newTestService(store kv.Store) *Service {
	svc := NewService(NewRepository(store), pricing.DefaultRates())
	svc.Metrics = metrics.New("test")
	return svc
}

func ev(name, session string, ts int64, payload map[string]any) Event {
	return NewEvent(name, session, "tenant-1", ts, payload)
}

func mustApply(t *testing.T, svc *Service, e Event) ApplyResult {
	t.Helper()
	res, err := svc.ApplyEvent(context.Background(), e)
	require.NoError(t, err)
	return res
}

func TestApplyEvent_FirstEventCreatesRingingSession(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())

	res := mustApply(t, svc, ev("call.started", "call-42", t0, nil))

	assert.Equal(t, LookupCreated, res.Lookup)
	assert.Equal(t, DispositionApplied, res.Disposition)
	assert.Equal(t, SessionRinging, res.Session.SessionStatus)
	assert.True(t, res.Session.IsLive)
	assert.Empty(t, res.Session.Transcript)
	assert.Equal(t, t0, res.Session.StartTime)
	assert.Equal(t, "tenant-1", res.Session.TenantID)

	stored, err := svc.Get(context.Background(), "call-42")
	require.NoError(t, err)
	assert.Equal(t, SessionRinging, stored.SessionStatus)
	assert.Equal(t, int64(1), stored.Version)
}

func TestApplyEvent_FullCallLifecycle(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())

	steps := []Event{
		ev("call.started", "call-42", t0, nil),
		ev("call.answered", "call-42", t0+2_000, nil),
		ev("stt.partial", "call-42", t0+5_000, map[string]any{"text": "hello"}),
		ev("llm.response", "call-42", t0+6_000, map[string]any{"text": "hi there"}),
	}
	for _, e := range steps {
		res := mustApply(t, svc, e)
		assert.True(t, res.Session.IsLive, "live after %s", e.Type)
		assert.Zero(t, res.Session.Duration)
	}

	res := mustApply(t, svc, ev("call.ended", "call-42", t0+45_000, nil))
	got := res.Session

	assert.Equal(t, LookupFound, res.Lookup)
	assert.Equal(t, SessionEnded, got.SessionStatus)
	assert.False(t, got.IsLive)
	assert.Equal(t, CallStatusCompleted, got.CallStatus)
	assert.Equal(t, int64(45), got.Duration)
	assert.Equal(t, "0.675", got.Cost.String())
	assert.Equal(t, "0.27", got.Margin.String())
	assert.Equal(t, t0+45_000, got.EndTime)
	assert.Equal(t, []TranscriptEntry{
		{Role: RoleUser, Text: "hello", TS: t0 + 5_000},
		{Role: RoleAgent, Text: "hi there", TS: t0 + 6_000},
	}, got.Transcript)
	assert.Equal(t, int64(5), got.Version, "one write per event")
}

func TestListActive_TracksLiveness(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(kv.NewMemoryStore())

	mustApply(t, svc, ev("call.started", "call-42", t0, nil))
	mustApply(t, svc, ev("call.answered", "call-42", t0+1_000, nil))

	live, err := svc.ListActive(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "call-42", live[0].ID)
	assert.Equal(t, SessionConnected, live[0].SessionStatus)

	mustApply(t, svc, ev("call.ended", "call-42", t0+10_000, nil))

	live, err = svc.ListActive(ctx, "tenant-1")
	require.NoError(t, err)
	assert.NotNil(t, live)
	assert.Empty(t, live)

	history, err := svc.ListByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].IsLive)
}

func TestApplyEvent_RejectsMissingIdentifiers(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	svc := newTestService(store)

	_, err := svc.ApplyEvent(ctx, NewEvent("call.started", "", "tenant-1", t0, nil))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = svc.ApplyEvent(ctx, NewEvent("call.started", "call-1", "", t0, nil))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	all, err := store.ListAll(ctx, Kind)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestApplyEvent_RejectsTenantMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(kv.NewMemoryStore())
	mustApply(t, svc, ev("call.started", "call-1", t0, nil))

	_, err := svc.ApplyEvent(ctx, NewEvent("stt.partial", "call-1", "tenant-2", t0+1, map[string]any{"text": "x"}))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	got, err := svc.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Empty(t, got.Transcript)
	assert.Equal(t, "tenant-1", got.TenantID)
}

func TestApplyEvent_ConcurrentPartialsAreAllKept(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(kv.NewMemoryStore())
	mustApply(t, svc, ev("call.started", "call-7", t0, nil))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ApplyEvent(ctx, ev("stt.partial", "call-7", t0+int64(i), map[string]any{"text": fmt.Sprintf("chunk-%d", i)}))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.Get(ctx, "call-7")
	require.NoError(t, err)
	assert.Len(t, got.Transcript, n)
	assert.Zero(t, svc.locks.size(), "locks are released")
}

func TestApplyEvent_ConcurrentReplicasRetryOnConflict(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	// Two services over one store stand in for two processes: only the
	// conditional write keeps them from losing each other's updates.
	a := newTestService(store)
	b := newTestService(store)
	a.MaxAttempts = 100
	b.MaxAttempts = 100

	const perReplica = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*perReplica)
	for i := 0; i < perReplica; i++ {
		for r, svc := range []*Service{a, b} {
			wg.Add(1)
			go func(svc *Service, text string) {
				defer wg.Done()
				_, err := svc.ApplyEvent(ctx, ev("stt.partial", "call-9", t0, map[string]any{"text": text}))
				errs <- err
			}(svc, fmt.Sprintf("r%d-%d", r, i))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := a.Get(ctx, "call-9")
	require.NoError(t, err)
	assert.Len(t, got.Transcript, 2*perReplica)
}

type recordedAnomaly struct {
	tenant, session string
	kind            Anomaly
	name            string
}

type anomalySink struct {
	mu  sync.Mutex
	got []recordedAnomaly
}

func (s *anomalySink) LogSessionAnomaly(_ context.Context, tenantID, sessionID string, kind Anomaly, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, recordedAnomaly{tenantID, sessionID, kind, name})
	return nil
}

func TestApplyEvent_LateEventsAreIgnored(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(kv.NewMemoryStore())
	sink := &anomalySink{}
	svc.Anomalies = sink

	mustApply(t, svc, ev("call.started", "call-1", t0, nil))
	ended := mustApply(t, svc, ev("call.ended", "call-1", t0+3_000, nil))

	res := mustApply(t, svc, ev("stt.partial", "call-1", t0+4_000, map[string]any{"text": "too late"}))
	assert.Equal(t, DispositionLate, res.Disposition)
	assert.Equal(t, LookupFound, res.Lookup)

	got, err := svc.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Empty(t, got.Transcript)
	assert.Equal(t, ended.Session.Version, got.Version, "no write for a late event")
	assert.Equal(t, int64(3), got.Duration)

	// A second call.ended must not recompute metrics.
	res = mustApply(t, svc, ev("call.ended", "call-1", t0+60_000, nil))
	assert.Equal(t, DispositionLate, res.Disposition)
	assert.Equal(t, int64(3), res.Session.Duration)

	require.Len(t, sink.got, 2)
	assert.Equal(t, recordedAnomaly{"tenant-1", "call-1", AnomalyLateEvent, "stt.partial"}, sink.got[0])
}

func TestApplyEvent_UnknownTypes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(kv.NewMemoryStore())
	sink := &anomalySink{}
	svc.Anomalies = sink

	res := mustApply(t, svc, ev("call.transfered", "call-1", t0, map[string]any{"agentId": "agent-1"}))
	assert.Equal(t, LookupCreated, res.Lookup)
	assert.Equal(t, DispositionUnknown, res.Disposition)
	assert.Equal(t, SessionInitiating, res.Session.SessionStatus)
	assert.Empty(t, res.Session.AgentID, "unknown events change nothing beyond initialization")

	stored, err := svc.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.True(t, stored.IsLive)
	assert.Equal(t, int64(1), stored.Version)

	res = mustApply(t, svc, ev("dtmf.pressed", "call-1", t0+1, nil))
	assert.Equal(t, LookupFound, res.Lookup)
	assert.Equal(t, DispositionUnknown, res.Disposition)

	stored, err = svc.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version, "no write for an unknown event on an existing session")

	require.Len(t, sink.got, 2)
	assert.Equal(t, AnomalyUnknownEvent, sink.got[0].kind)
	assert.Equal(t, "call.transfered", sink.got[0].name)
}

func TestApplyEvent_StatusNeverMovesBackwards(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())

	mustApply(t, svc, ev("call.answered", "call-1", t0, nil))
	res := mustApply(t, svc, ev("call.started", "call-1", t0-500, nil))
	assert.Equal(t, SessionConnected, res.Session.SessionStatus)
	assert.Equal(t, t0, res.Session.StartTime, "startTime is fixed by the first event")

	res = mustApply(t, svc, ev("recording.saved", "call-1", t0+1_000, map[string]any{"url": "https://rec.example/1.wav"}))
	assert.Equal(t, SessionRecording, res.Session.SessionStatus)
	assert.Equal(t, "https://rec.example/1.wav", res.Session.RecordingURL)

	res = mustApply(t, svc, ev("call.answered", "call-1", t0+2_000, nil))
	assert.Equal(t, SessionRecording, res.Session.SessionStatus)
}

func TestApplyEvent_RecordingBeforeConnectKeepsStatus(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())

	mustApply(t, svc, ev("call.started", "call-1", t0, nil))
	res := mustApply(t, svc, ev("recording.saved", "call-1", t0+1, map[string]any{"url": "u"}))
	assert.Equal(t, SessionRinging, res.Session.SessionStatus)
	assert.Equal(t, "u", res.Session.RecordingURL)
}

func TestApplyEvent_TerminalOutcomeFromPayload(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())

	cases := map[string]CallStatus{
		"failed":    CallStatusFailed,
		"no-answer": CallStatusNoAnswer,
		"":          CallStatusCompleted,
		"weird":     CallStatusCompleted,
	}
	i := 0
	for status, want := range cases {
		i++
		id := fmt.Sprintf("call-%d", i)
		mustApply(t, svc, ev("call.started", id, t0, nil))
		res := mustApply(t, svc, ev("call.ended", id, t0+1_500, map[string]any{"status": status}))
		assert.Equal(t, want, res.Session.CallStatus, "status %q", status)
		assert.Equal(t, int64(1), res.Session.Duration)
	}
}

func TestApplyEvent_ProviderHealthAndRoutingContext(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())

	mustApply(t, svc, ev("call.started", "call-1", t0, map[string]any{"agentId": "agent-1", "from": "+15550001", "to": "+15550002"}))
	mustApply(t, svc, ev("stt.partial", "call-1", t0+1, map[string]any{"text": "hi", "status": "error", "latencyMs": float64(120)}))
	mustApply(t, svc, ev("llm.response", "call-1", t0+2, map[string]any{"error": "timeout"}))
	res := mustApply(t, svc, ev("tts.played", "call-1", t0+3, map[string]any{"agentId": "agent-2", "latencyMs": float64(80)}))

	got := res.Session
	assert.Equal(t, "agent-1", got.AgentID, "routing context is set once")
	assert.Equal(t, "+15550001", got.FromNumber)
	assert.Equal(t, "+15550002", got.ToNumber)
	assert.Equal(t, ProviderError, got.ProviderStatuses.STT)
	assert.Equal(t, ProviderError, got.ProviderStatuses.LLM)
	assert.Equal(t, ProviderOK, got.ProviderStatuses.TTS)
	assert.Equal(t, map[string]int64{"stt": 120, "tts": 80}, got.Metadata.Latencies)

	res = mustApply(t, svc, ev("stt.partial", "call-1", t0+4, map[string]any{"text": "ok now"}))
	assert.Equal(t, ProviderOK, res.Session.ProviderStatuses.STT, "most recent event wins")
}

func TestApplyEvent_DefaultsTimestampToReceiptTime(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())
	now := time.UnixMilli(t0 + 123)
	svc.clock = func() time.Time { return now }

	res := mustApply(t, svc, ev("call.started", "call-1", 0, nil))
	assert.Equal(t, t0+123, res.Session.StartTime)
}

func TestApplyEvent_EmptyTextAppendsNothing(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())
	res := mustApply(t, svc, ev("stt.partial", "call-1", t0, map[string]any{"text": "   "}))
	assert.Empty(t, res.Session.Transcript)
	res = mustApply(t, svc, ev("llm.response", "call-1", t0, nil))
	assert.Empty(t, res.Session.Transcript)
}

// conflictStore loses every conditional write.
type conflictStore struct {
	kv.Store
	puts int
}

func (s *conflictStore) Put(context.Context, string, kv.Entry) (int64, error) {
	s.puts++
	return 0, kv.ErrConflict
}

func TestApplyEvent_ExhaustedRetriesSurfaceStoreUnavailable(t *testing.T) {
	store := &conflictStore{Store: kv.NewMemoryStore()}
	svc := newTestService(store)
	svc.MaxAttempts = 3

	_, err := svc.ApplyEvent(context.Background(), ev("call.started", "call-1", t0, nil))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 3, store.puts)
}

// brokenStore fails every read.
type brokenStore struct {
	kv.Store
}

func (brokenStore) Get(context.Context, string, string) (kv.Entry, error) {
	return kv.Entry{}, errors.New("connection refused")
}

func (brokenStore) ListActive(context.Context, string) ([]kv.Entry, error) {
	return nil, errors.New("connection refused")
}

func TestApplyEvent_StoreFailureIsNotSwallowed(t *testing.T) {
	svc := newTestService(brokenStore{Store: kv.NewMemoryStore()})

	_, err := svc.ApplyEvent(context.Background(), ev("call.started", "call-1", t0, nil))
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.ListActive(context.Background(), "")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestListByTenant_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(kv.NewMemoryStore())

	mustApply(t, svc, ev("call.started", "a", t0, nil))
	mustApply(t, svc, ev("call.started", "b", t0+10, nil))
	mustApply(t, svc, NewEvent("call.started", "c", "tenant-2", t0+20, nil))

	got, err := svc.ListByTenant(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	all, err := svc.ListActive(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.ListByTenant(ctx, "")
	assert.ErrorIs(t, err, ErrTenantRequired)
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditAdapter_WritesAnomalies(t *testing.T) {
	repo := audit.NewMemoryRepo()
	svc := newTestService(kv.NewMemoryStore())
	svc.Anomalies = AuditAdapter{Audit: audit.NewService(repo)}

	mustApply(t, svc, ev("call.started", "call-1", t0, nil))
	mustApply(t, svc, ev("call.ended", "call-1", t0+1_000, nil))
	mustApply(t, svc, ev("tts.played", "call-1", t0+2_000, nil))

	evs := repo.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventTypeLateEvent, evs[0].Type)
	assert.Equal(t, "call-1", evs[0].SessionID)
	assert.Equal(t, "tenant-1", evs[0].TenantID)
}

type settleSink struct {
	mu  sync.Mutex
	got []CallSession
	err error
}

func (s *settleSink) SettleCall(_ context.Context, sess CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, sess)
	return s.err
}

func TestApplyEvent_SettlesOnEndAndOnReplay(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())
	sink := &settleSink{}
	svc.Settlement = sink

	mustApply(t, svc, ev("call.started", "call-9", t0, nil))
	assert.Empty(t, sink.got, "live calls are not settled")

	mustApply(t, svc, ev("call.ended", "call-9", t0+45_000, nil))
	mustApply(t, svc, ev("stt.partial", "call-9", t0+50_000, map[string]any{"text": "late"}))

	require.Len(t, sink.got, 1)
	assert.Equal(t, "0.675", sink.got[0].Cost.String())
	assert.False(t, sink.got[0].IsLive)

	// A replayed call.ended hands over the stored session again, unchanged.
	res := mustApply(t, svc, ev("call.ended", "call-9", t0+90_000, nil))
	assert.Equal(t, DispositionLate, res.Disposition)
	require.Len(t, sink.got, 2)
	assert.Equal(t, "0.675", sink.got[1].Cost.String())
	assert.Equal(t, int64(45), sink.got[1].Duration)
}

func TestApplyEvent_SettlementFailureDoesNotFailEvent(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())
	svc.Settlement = &settleSink{err: errors.New("ledger down")}

	mustApply(t, svc, ev("call.started", "call-10", t0, nil))
	res := mustApply(t, svc, ev("call.ended", "call-10", t0+10_000, nil))
	assert.Equal(t, DispositionApplied, res.Disposition)
}

func TestApplyEvent_ReplayedEndRetriesFailedSettlement(t *testing.T) {
	svc := newTestService(kv.NewMemoryStore())
	sink := &settleSink{err: errors.New("ledger down")}
	svc.Settlement = sink

	mustApply(t, svc, ev("call.started", "call-11", t0, nil))
	mustApply(t, svc, ev("call.ended", "call-11", t0+45_000, nil))
	require.Len(t, sink.got, 1)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	res := mustApply(t, svc, ev("call.ended", "call-11", t0+60_000, nil))
	assert.Equal(t, DispositionLate, res.Disposition)
	require.Len(t, sink.got, 2)
	assert.Equal(t, "call-11", sink.got[1].ID)
	assert.Equal(t, "0.675", sink.got[1].Cost.String(), "the stored metrics are settled, not the replay's")
}
