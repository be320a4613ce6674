package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"voice-platform/internal/calls"
	"voice-platform/internal/pricing"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

var errNoRepo = errors.New("reporting: repository not configured")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - ListCalls must enforce tenant filtering; an empty tenantID is reserved for platform-wide stats.
// - Sessions are matched on startTime within [from, to).
type Repository interface {
	ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.CallSession, error)
	CountTenants(ctx context.Context) (total, active int, err error)
	CountOpenIncidents(ctx context.Context) (int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.TenantID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errNoRepo
	}

	rows, err := s.repo.ListCalls(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{TenantID: req.TenantID}
	cost, margin := decimal.Zero, decimal.Zero
	finished := int64(0)
	for _, c := range rows {
		out.TotalCalls++
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.IsLive {
			out.LiveCalls++
			continue
		}
		finished++
		out.TotalDurationSeconds += c.Duration
		cost = cost.Add(c.Cost.Decimal)
		margin = margin.Add(c.Margin.Decimal)

		switch c.CallStatus {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case calls.CallStatusOngoing:
			// not counted separately
		}
	}
	if finished > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / finished
	}
	out.TotalCost = pricing.NewAmount(cost)
	out.TotalMargin = pricing.NewAmount(margin)
	return out, nil
}

// PlatformStats summarizes every tenant. Calls are not time-bounded.
func (s *Service) PlatformStats(ctx context.Context) (PlatformStats, error) {
	if s.repo == nil {
		return PlatformStats{}, errNoRepo
	}
	total, active, err := s.repo.CountTenants(ctx)
	if err != nil {
		return PlatformStats{}, err
	}
	incidents, err := s.repo.CountOpenIncidents(ctx)
	if err != nil {
		return PlatformStats{}, err
	}
	rows, err := s.repo.ListCalls(ctx, "", time.Time{}, time.Time{})
	if err != nil {
		return PlatformStats{}, err
	}

	out := PlatformStats{TotalTenants: total, ActiveTenants: active, ActiveIncidents: incidents, TotalCalls: len(rows)}
	cost, margin := decimal.Zero, decimal.Zero
	for _, c := range rows {
		if c.IsLive {
			out.LiveCalls++
		}
		cost = cost.Add(c.Cost.Decimal)
		margin = margin.Add(c.Margin.Decimal)
	}
	out.TotalCost = pricing.NewAmount(cost)
	out.TotalMargin = pricing.NewAmount(margin)
	return out, nil
}

// UsageStats reports per-stage provider volume across every session.
// A session counts toward a stage when it carries a latency sample or an
// error status for that stage.
func (s *Service) UsageStats(ctx context.Context) (UsageStats, error) {
	if s.repo == nil {
		return UsageStats{}, errNoRepo
	}
	rows, err := s.repo.ListCalls(ctx, "", time.Time{}, time.Time{})
	if err != nil {
		return UsageStats{}, err
	}

	out := UsageStats{Providers: make([]ProviderUsage, 0, len(usageStages))}
	for _, stage := range usageStages {
		u := ProviderUsage{Stage: stage}
		var latencySum, samples, errs int64
		for _, c := range rows {
			lat, sampled := c.Metadata.Latencies[stage]
			failed := stageStatus(c.ProviderStatuses, stage) == calls.ProviderError
			if !sampled && !failed {
				continue
			}
			u.Volume++
			if sampled {
				latencySum += lat
				samples++
			}
			if failed {
				errs++
			}
		}
		if samples > 0 {
			u.LatencyMs = latencySum / samples
		}
		if u.Volume > 0 {
			u.ErrorRate = float64(errs) / float64(u.Volume)
		}
		out.Providers = append(out.Providers, u)
	}
	return out, nil
}

var usageStages = []string{"stt", "llm", "tts"}

func stageStatus(p calls.ProviderStatuses, stage string) calls.ProviderStatus {
	switch stage {
	case "stt":
		return p.STT
	case "llm":
		return p.LLM
	default:
		return p.TTS
	}
}

// inRange treats a zero bound as open.
func inRange(startMs int64, from, to time.Time) bool {
	t := time.UnixMilli(startMs)
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
