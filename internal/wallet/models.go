package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is an immutable append-only entry.
// Each record represents a credit/debit posted to a tenant's prepaid balance.
//
// Multi-tenant invariant: tenantId required.
// Money invariant: the balance is derived from ledger entries only; nothing stores it.
type LedgerEntry struct {
	ID       string          `json:"id"`
	TenantID string          `json:"tenantId"`
	Type     LedgerEntryType `json:"type"`

	// Amount is signed: credits are positive, debits are negative.
	Amount decimal.Decimal `json:"amount"`

	// ExternalRef is optional: session id, "admin_manual_credit", "opening_balance".
	ExternalRef string `json:"externalRef,omitempty"`

	// IdempotencyKey is required for safe retries of money-posting operations.
	IdempotencyKey string `json:"idempotencyKey"`

	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type LedgerEntryType string

const (
	LedgerEntryTypeCredit LedgerEntryType = "credit" // top-up, adjustment, opening balance
	LedgerEntryTypeDebit  LedgerEntryType = "debit"  // call usage
)

type Balance struct {
	TenantID  string          `json:"tenantId"`
	Balance   decimal.Decimal `json:"balance"`
	Entries   int             `json:"entries"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CreditRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	ExternalRef    string          `json:"externalRef,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Metadata       string          `json:"metadata,omitempty"`
}

type DebitRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	ExternalRef    string          `json:"externalRef,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Metadata       string          `json:"metadata,omitempty"`
}

type AdminCreditRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Metadata       string          `json:"metadata,omitempty"`
}
