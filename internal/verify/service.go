// Package verify orchestrates one verification run: probe the official URL,
// score its source, re-research the grant, aggregate and persist.
package verify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/grant-verifier/internal/aggregate"
	"github.com/sells-group/grant-verifier/internal/model"
	"github.com/sells-group/grant-verifier/internal/store"
)

// Errors that stop a run before any phase starts.
var (
	ErrInvalidInput = eris.New("verify: grant id is required")
	ErrNotFound     = eris.New("verify: grant not found")
	ErrUnavailable  = eris.New("verify: research service not configured")
)

// Phase names a stage of a run.
type Phase string

const (
	PhaseProbing          Phase = "probing"
	PhaseScoring          Phase = "scoring"
	PhaseCrossReferencing Phase = "cross_referencing"
	PhaseAggregating      Phase = "aggregating"
	PhasePersisting       Phase = "persisting"
)

// GrantStore is the persistence a run needs.
type GrantStore interface {
	GetGrant(ctx context.Context, id string) (*model.Grant, error)
	InsertVerificationLog(ctx context.Context, log *model.VerificationLog) error
	UpdateGrantVerification(ctx context.Context, id string, upd model.GrantVerificationUpdate) error
}

// URLProber checks a grant's claimed official page.
type URLProber interface {
	Probe(ctx context.Context, rawURL, grantName string) model.ProbeResult
}

// SourceScorer rates a source domain.
type SourceScorer interface {
	Score(hostname string, isGovernment, reachable bool) model.TrustScore
}

// CrossReferencer re-researches a grant.
type CrossReferencer interface {
	Verify(ctx context.Context, g *model.Grant) model.CrossReferenceResult
}

// Response is the result of one run as returned to callers.
type Response struct {
	GrantID       string                   `json:"grant_id"`
	Status        model.VerificationStatus `json:"status"`
	Confidence    int                      `json:"confidence"`
	ChecksPassed  int                      `json:"checks_passed"`
	ChecksTotal   int                      `json:"checks_total"`
	Issues        []model.Issue            `json:"issues"`
	TrustScore    model.TrustScore         `json:"trust_score"`
	Discrepancies []model.Discrepancy      `json:"discrepancies"`
	FreshData     map[string]any           `json:"fresh_data"`
	DurationMS    int64                    `json:"duration_ms"`
}

// Service runs verifications. It holds no per-run state and is safe for
// concurrent use.
type Service struct {
	store  GrantStore
	prober URLProber
	scorer SourceScorer
	xref   CrossReferencer
	now    func() time.Time
}

// NewService creates a Service. A nil xref makes every run fail with
// ErrUnavailable.
func NewService(st GrantStore, prober URLProber, scorer SourceScorer, xref CrossReferencer) *Service {
	return &Service{
		store:  st,
		prober: prober,
		scorer: scorer,
		xref:   xref,
		now:    time.Now,
	}
}

// Verify runs all phases for grantID and persists the outcome. Phase
// failures degrade the result instead of failing the run; persistence
// failures are logged and the computed response is still returned.
func (s *Service) Verify(ctx context.Context, grantID string) (*Response, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return nil, ErrInvalidInput
	}
	if s.xref == nil {
		return nil, ErrUnavailable
	}

	start := s.now()
	log := zap.L().With(zap.String("grant_id", grantID))

	grant, err := s.store.GetGrant(ctx, grantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNotFound, "verify: grant %s", grantID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "verify: load grant %s", grantID)
	}

	log.Info("verify: starting", zap.String("name", grant.Name), zap.String("url", grant.OfficialURL))

	var (
		probe model.ProbeResult
		trust model.TrustScore
		xref  model.CrossReferenceResult
	)

	// Probe then score on one branch; research on the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.phase(log, PhaseProbing, func() {
			probe = s.prober.Probe(gctx, grant.OfficialURL, grant.Name)
		})
		if !probe.URLValid {
			class := "unreachable"
			if strings.TrimSpace(grant.OfficialURL) == "" {
				class = "missing_url"
			}
			phaseFailures.WithLabelValues(string(PhaseProbing), class).Inc()
		}
		s.phase(log, PhaseScoring, func() {
			trust = s.scorer.Score(probe.URLDomain, probe.IsGovernmentDomain, probe.URLValid)
		})
		return nil
	})
	g.Go(func() error {
		s.phase(log, PhaseCrossReferencing, func() {
			xref = s.xref.Verify(gctx, grant)
		})
		return nil
	})
	_ = g.Wait()

	var outcome model.Outcome
	s.phase(log, PhaseAggregating, func() {
		outcome = aggregate.Aggregate(probe, trust, xref)
	})

	duration := s.now().Sub(start).Milliseconds()

	s.phase(log, PhasePersisting, func() {
		s.persist(ctx, log, grant.ID, probe, trust, xref, outcome, duration)
	})

	verificationsTotal.WithLabelValues(string(outcome.Status)).Inc()
	verificationDuration.Observe(float64(duration) / 1000)

	log.Info("verify: complete",
		zap.String("status", string(outcome.Status)),
		zap.Int("confidence", outcome.Confidence),
		zap.Int("checks_passed", outcome.ChecksPassed),
		zap.Int("checks_total", outcome.ChecksTotal),
		zap.Int("issues", len(outcome.Issues)),
		zap.Int64("duration_ms", duration),
	)

	return &Response{
		GrantID:       grant.ID,
		Status:        outcome.Status,
		Confidence:    outcome.Confidence,
		ChecksPassed:  outcome.ChecksPassed,
		ChecksTotal:   outcome.ChecksTotal,
		Issues:        outcome.Issues,
		TrustScore:    trust,
		Discrepancies: xref.Discrepancies,
		FreshData:     xref.FreshData,
		DurationMS:    duration,
	}, nil
}

func (s *Service) phase(log *zap.Logger, p Phase, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	phaseDuration.WithLabelValues(string(p)).Observe(elapsed.Seconds())
	log.Debug("verify: phase complete",
		zap.String("phase", string(p)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	)
}

// persist writes the log row and then overwrites the grant's denormalized
// verification fields. Both writes are attempted.
func (s *Service) persist(
	ctx context.Context,
	log *zap.Logger,
	grantID string,
	probe model.ProbeResult,
	trust model.TrustScore,
	xref model.CrossReferenceResult,
	outcome model.Outcome,
	duration int64,
) {
	now := s.now().UTC()

	entry := BuildLog(grantID, probe, trust, xref, outcome, duration)
	entry.CreatedAt = now
	if err := s.store.InsertVerificationLog(ctx, entry); err != nil {
		persistFailures.WithLabelValues("insert_log").Inc()
		log.Error("verify: failed to insert verification log", zap.Error(err))
	}

	upd := model.GrantVerificationUpdate{
		Status:     outcome.Status,
		Confidence: outcome.Confidence,
		VerifiedAt: now,
		Details: model.VerificationDetails{
			ChecksPassed:     outcome.ChecksPassed,
			ChecksTotal:      outcome.ChecksTotal,
			Issues:           outcome.Issues,
			SourceType:       trust.SourceType,
			CrossrefRan:      xref.Ran,
			DiscrepancyCount: len(xref.Discrepancies),
			FreshData:        xref.FreshData,
			DurationMS:       duration,
		},
	}
	if err := s.store.UpdateGrantVerification(ctx, grantID, upd); err != nil {
		persistFailures.WithLabelValues("update_grant").Inc()
		log.Error("verify: failed to update grant verification", zap.Error(err))
	}
}

// BuildLog assembles the immutable log row for one run. Page text is never
// carried into the row.
func BuildLog(
	grantID string,
	probe model.ProbeResult,
	trust model.TrustScore,
	xref model.CrossReferenceResult,
	outcome model.Outcome,
	duration int64,
) *model.VerificationLog {
	return &model.VerificationLog{
		GrantID:              grantID,
		Confidence:           outcome.Confidence,
		Status:               outcome.Status,
		URLValid:             probe.URLValid,
		URLStatusCode:        probe.URLStatusCode,
		URLContainsGrantName: probe.URLContainsGrantName,
		URLDomain:            probe.URLDomain,
		IsGovernmentDomain:   probe.IsGovernmentDomain,
		CrossrefRan:          xref.Ran,
		AmountMatch:          xref.AmountMatch,
		DeadlineMatch:        xref.DeadlineMatch,
		EligibilityMatch:     xref.EligibilityMatch,
		Discrepancies:        xref.Discrepancies,
		FreshData:            xref.FreshData,
		TrustScore:           trust.Score,
		SourceType:           trust.SourceType,
		AuthorityTier:        trust.AuthorityTier,
		ChecksPassed:         outcome.ChecksPassed,
		ChecksTotal:          outcome.ChecksTotal,
		Issues:               outcome.Issues,
		DurationMS:           duration,
	}
}
