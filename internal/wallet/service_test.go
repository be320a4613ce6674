package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-platform/internal/audit"
	"voice-platform/internal/calls"
	"voice-platform/internal/kv"
	"voice-platform/internal/pricing"
)

func newTestService(t *testing.T) (*Service, *audit.MemoryRepo) {
	t.Helper()
	repo := audit.NewMemoryRepo()
	svc := NewService(kv.NewMemoryStore(), audit.NewService(repo))
	now := time.Unix(1760000000, 0)
	svc.clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return svc, repo
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreditAndDebit_DeriveBalanceFromLedger(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, bal, err := svc.Credit(ctx, "tenant-1", CreditRequest{Amount: dec("25.00"), IdempotencyKey: "topup-1"})
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("25")))

	entry, bal, err := svc.Debit(ctx, "tenant-1", DebitRequest{Amount: dec("0.675"), IdempotencyKey: "call:a"})
	require.NoError(t, err)
	assert.Equal(t, LedgerEntryTypeDebit, entry.Type)
	assert.True(t, entry.Amount.Equal(dec("-0.675")))
	assert.True(t, bal.Balance.Equal(dec("24.325")), bal.Balance.String())
	assert.Equal(t, 2, bal.Entries)

	other, err := svc.GetBalance(ctx, "tenant-2")
	require.NoError(t, err)
	assert.True(t, other.Balance.IsZero())
	assert.Zero(t, other.Entries)
}

func TestPost_IsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Credit(ctx, "tenant-1", CreditRequest{Amount: dec("10"), IdempotencyKey: "k"})
	require.NoError(t, err)
	replay, bal, err := svc.Credit(ctx, "tenant-1", CreditRequest{Amount: dec("99"), IdempotencyKey: "k"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, replay.ID)
	assert.True(t, replay.Amount.Equal(dec("10")), "replay returns the original entry")
	assert.True(t, bal.Balance.Equal(dec("10")))

	// Keys are scoped per tenant.
	_, bal, err = svc.Credit(ctx, "tenant-2", CreditRequest{Amount: dec("5"), IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("5")))
}

func TestMoneyRequests_RejectInvalidArgs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Credit(ctx, "", CreditRequest{Amount: dec("1"), IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = svc.Credit(ctx, "t", CreditRequest{Amount: dec("0"), IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = svc.Debit(ctx, "t", DebitRequest{Amount: dec("-1"), IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = svc.Debit(ctx, "t", DebitRequest{Amount: dec("1")})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.GetBalance(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAdminManualCredit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.AdminManualCredit(ctx, "tenant-1", "", "super_admin", "", AdminCreditRequest{Amount: dec("5"), Reason: "refund", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = svc.AdminManualCredit(ctx, "tenant-1", "root", "super_admin", "", AdminCreditRequest{Amount: dec("5"), IdempotencyKey: "k"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	entry, bal, err := svc.AdminManualCredit(ctx, "tenant-1", "root", "super_admin", "10.0.0.1", AdminCreditRequest{Amount: dec("5"), Reason: "refund", IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "admin_manual_credit", entry.ExternalRef)
	assert.True(t, bal.Balance.Equal(dec("5")))

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAdminAction, events[0].Type)
	assert.Equal(t, entry.ID, events[0].TargetID)
	assert.Equal(t, "10.0.0.1", events[0].IPAddress)
}

func TestSettleCall(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SettleCall(ctx, calls.CallSession{ID: "live", TenantID: "tenant-1", IsLive: true, Cost: pricing.MustAmount("1")}))
	require.NoError(t, svc.SettleCall(ctx, calls.CallSession{ID: "free", TenantID: "tenant-1"}))

	done := calls.CallSession{ID: "c-1", TenantID: "tenant-1", Cost: pricing.MustAmount("0.675")}
	require.NoError(t, svc.SettleCall(ctx, done))
	require.NoError(t, svc.SettleCall(ctx, done))

	ledger, err := svc.ListLedger(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "c-1", ledger[0].ExternalRef)
	assert.True(t, ledger[0].Amount.Equal(dec("-0.675")))
}

func TestSettleCall_ThroughAggregator(t *testing.T) {
	store := kv.NewMemoryStore()
	w := NewService(store, nil)
	agg := calls.NewService(calls.NewRepository(store), pricing.DefaultRates())
	agg.Settlement = w
	ctx := context.Background()

	_, err := agg.ApplyEvent(ctx, calls.NewEvent("call.started", "s-1", "tenant-1", 1_760_000_000_000, nil))
	require.NoError(t, err)
	_, err = agg.ApplyEvent(ctx, calls.NewEvent("call.ended", "s-1", "tenant-1", 1_760_000_045_000, nil))
	require.NoError(t, err)

	bal, err := w.GetBalance(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(dec("-0.675")), bal.Balance.String())
}

type flakySettler struct {
	next  *Service
	fails int
}

func (f *flakySettler) SettleCall(ctx context.Context, sess calls.CallSession) error {
	if f.fails > 0 {
		f.fails--
		return errors.New("ledger unavailable")
	}
	return f.next.SettleCall(ctx, sess)
}

func TestSettleCall_ReplayedEndBillsOnce(t *testing.T) {
	store := kv.NewMemoryStore()
	w := NewService(store, nil)
	agg := calls.NewService(calls.NewRepository(store), pricing.DefaultRates())
	agg.Settlement = &flakySettler{next: w, fails: 1}
	ctx := context.Background()

	for _, e := range []calls.Event{
		calls.NewEvent("call.started", "s-2", "tenant-1", 1_760_000_000_000, nil),
		calls.NewEvent("call.ended", "s-2", "tenant-1", 1_760_000_045_000, nil),
	} {
		_, err := agg.ApplyEvent(ctx, e)
		require.NoError(t, err)
	}
	ledger, err := w.ListLedger(ctx, "tenant-1")
	require.NoError(t, err)
	require.Empty(t, ledger, "first settlement failed")

	for i := 0; i < 2; i++ {
		_, err := agg.ApplyEvent(ctx, calls.NewEvent("call.ended", "s-2", "tenant-1", 1_760_000_099_000, nil))
		require.NoError(t, err)
	}
	ledger, err = w.ListLedger(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.True(t, ledger[0].Amount.Equal(dec("-0.675")), ledger[0].Amount.String())
}
