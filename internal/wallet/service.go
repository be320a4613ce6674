package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"voice-platform/internal/calls"
	"voice-platform/internal/kv"
)

const Kind = "wallet-ledger"

var (
	ErrInvalidArgument = errors.New("wallet: invalid argument")
)

// Auditor records privileged money actions. audit.Service satisfies it.
type Auditor interface {
	LogAdminAction(ctx context.Context, tenantID, actorUserID, actorRole, ip, message, targetID, metadata string) error
}

// Service provides prepaid balance operations.
//
// Money invariants:
// - No balance without a ledger entry; GetBalance sums the ledger
// - Ledger is append-only (entries are created at version 0 and never rewritten)
// - Posting is idempotent per (tenant, idempotency key): a replay returns the first entry
//
// Usage is post-paid against the balance: call debits are never refused, so the
// balance may go negative.
type Service struct {
	store kv.Store
	audit Auditor

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store kv.Store, audit Auditor) *Service {
	return &Service{store: store, audit: audit, clock: time.Now}
}

func (s *Service) GetBalance(ctx context.Context, tenantID string) (Balance, error) {
	if tenantID == "" {
		return Balance{}, ErrInvalidArgument
	}
	entries, err := s.ListLedger(ctx, tenantID)
	if err != nil {
		return Balance{}, err
	}
	out := Balance{TenantID: tenantID, Balance: decimal.Zero, Entries: len(entries)}
	for _, e := range entries {
		out.Balance = out.Balance.Add(e.Amount)
		if e.CreatedAt.After(out.UpdatedAt) {
			out.UpdatedAt = e.CreatedAt
		}
	}
	return out, nil
}

// ListLedger returns the tenant's entries, oldest first.
func (s *Service) ListLedger(ctx context.Context, tenantID string) ([]LedgerEntry, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	all, err := s.store.ListAll(ctx, Kind)
	if err != nil {
		return nil, err
	}
	out := make([]LedgerEntry, 0, len(all))
	for _, rec := range all {
		var e LedgerEntry
		if err := rec.Decode(&e); err != nil {
			return nil, fmt.Errorf("wallet: decode %s: %w", rec.ID, err)
		}
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) Credit(ctx context.Context, tenantID string, req CreditRequest) (LedgerEntry, Balance, error) {
	if err := validateMoneyReq(tenantID, req.Amount, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	return s.post(ctx, LedgerEntry{
		TenantID:       tenantID,
		Type:           LedgerEntryTypeCredit,
		Amount:         req.Amount,
		ExternalRef:    req.ExternalRef,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
}

func (s *Service) Debit(ctx context.Context, tenantID string, req DebitRequest) (LedgerEntry, Balance, error) {
	if err := validateMoneyReq(tenantID, req.Amount, req.IdempotencyKey); err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	return s.post(ctx, LedgerEntry{
		TenantID:       tenantID,
		Type:           LedgerEntryTypeDebit,
		Amount:         req.Amount.Neg(),
		ExternalRef:    req.ExternalRef,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
}

// AdminManualCredit performs a privileged credit and records it in the audit log.
func (s *Service) AdminManualCredit(ctx context.Context, tenantID, adminUserID, adminRole, ip string, req AdminCreditRequest) (LedgerEntry, Balance, error) {
	if adminUserID == "" || adminRole == "" {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	if req.Reason == "" {
		return LedgerEntry{}, Balance{}, ErrInvalidArgument
	}
	entry, bal, err := s.Credit(ctx, tenantID, CreditRequest{
		Amount:         req.Amount,
		ExternalRef:    "admin_manual_credit",
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	if s.audit != nil {
		msg := fmt.Sprintf("manual credit %s: %s", entry.Amount.String(), req.Reason)
		// Best effort: the credit is already posted.
		_ = s.audit.LogAdminAction(ctx, tenantID, adminUserID, adminRole, ip, msg, entry.ID, req.Metadata)
	}
	return entry, bal, nil
}

// SettleCall debits a finished call's cost. Replays for the same session are no-ops.
func (s *Service) SettleCall(ctx context.Context, sess calls.CallSession) error {
	if sess.IsLive || !sess.Cost.IsPositive() {
		return nil
	}
	_, _, err := s.Debit(ctx, sess.TenantID, DebitRequest{
		Amount:         sess.Cost.Decimal,
		ExternalRef:    sess.ID,
		IdempotencyKey: "call:" + sess.ID,
	})
	return err
}

// post appends e unless an entry with the same idempotency key exists, in which
// case that entry is returned unchanged.
func (s *Service) post(ctx context.Context, e LedgerEntry) (LedgerEntry, Balance, error) {
	e.ID = ledgerID(e.TenantID, e.IdempotencyKey)
	e.CreatedAt = s.clock().UTC()

	rec, err := kv.NewEntry(e.ID, 0, false, e)
	if err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	_, err = s.store.Put(ctx, Kind, rec)
	switch {
	case errors.Is(err, kv.ErrConflict):
		existing, err := s.store.Get(ctx, Kind, e.ID)
		if err != nil {
			return LedgerEntry{}, Balance{}, err
		}
		if err := existing.Decode(&e); err != nil {
			return LedgerEntry{}, Balance{}, err
		}
	case err != nil:
		return LedgerEntry{}, Balance{}, err
	}

	bal, err := s.GetBalance(ctx, e.TenantID)
	if err != nil {
		return LedgerEntry{}, Balance{}, err
	}
	return e, bal, nil
}

func ledgerID(tenantID, key string) string {
	return tenantID + ":" + key
}

func validateMoneyReq(tenantID string, amount decimal.Decimal, idempotencyKey string) error {
	if tenantID == "" {
		return ErrInvalidArgument
	}
	if idempotencyKey == "" {
		return ErrInvalidArgument
	}
	if !amount.IsPositive() {
		return ErrInvalidArgument
	}
	return nil
}
