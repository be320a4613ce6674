package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"voice-platform/internal/audit"
	"voice-platform/internal/auth"
	"voice-platform/internal/calls"
	"voice-platform/internal/catalog"
	"voice-platform/internal/config"
	"voice-platform/internal/httpapi"
	"voice-platform/internal/kv"
	"voice-platform/internal/reporting"
	"voice-platform/internal/routing"
	"voice-platform/internal/telephony"
	"voice-platform/internal/wallet"
	"voice-platform/pkg/metrics"
)

// app holds the wired services. No globals; everything hangs off one store.
type app struct {
	cfg     config.Config
	metrics *metrics.Metrics
	store   kv.Store

	auth    *auth.Manager
	calls   *calls.Service
	catalog *catalog.Service
	wallet  *wallet.Service

	handlers httpapi.Handlers
	webhook  telephony.VoiceWebhookHandler
}

func newApp(cfg config.Config, store kv.Store, m *metrics.Metrics) (*app, error) {
	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, err
	}

	auditSvc := audit.NewService(audit.NewKVRepo(store))
	walletSvc := wallet.NewService(store, auditSvc)

	callSvc := calls.NewService(calls.NewRepository(store), cfg.Rates())
	callSvc.MaxAttempts = cfg.Aggregator.MaxAttempts
	callSvc.Anomalies = calls.AuditAdapter{Audit: auditSvc}
	callSvc.Settlement = walletSvc
	callSvc.Metrics = m

	catalogSvc := catalog.NewService(store, auditSvc)
	reportingSvc := reporting.NewService(reporting.SessionRepo{Sessions: callSvc, Tenants: catalogSvc, Incidents: catalogSvc})

	return &app{
		cfg:     cfg,
		metrics: m,
		store:   store,
		auth:    authManager,
		calls:   callSvc,
		catalog: catalogSvc,
		wallet:  walletSvc,
		handlers: httpapi.Handlers{
			Auth:      authManager,
			Calls:     callSvc,
			Catalog:   catalogSvc,
			Reporting: reportingSvc,
			Audit:     auditSvc,
			Wallet:    walletSvc,
		},
		webhook: telephony.VoiceWebhookHandler{
			Aggregator: callSvc,
			Router:     routing.NewEngine(catalogSvc),
			Secret:     cfg.Webhook.Secret,
		},
	}, nil
}

// seedDemo loads the demo catalog and posts each tenant's opening credits once.
func (a *app) seedDemo(ctx context.Context, now time.Time) error {
	if err := a.catalog.Seed(ctx, now); err != nil {
		return err
	}
	tenants, err := a.catalog.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		if t.Credits <= 0 {
			continue
		}
		_, _, err := a.wallet.Credit(ctx, t.ID, wallet.CreditRequest{
			Amount:         decimal.NewFromFloat(t.Credits),
			ExternalRef:    "opening_balance",
			IdempotencyKey: "opening-balance",
		})
		if err != nil {
			return err
		}
	}
	return nil
}
