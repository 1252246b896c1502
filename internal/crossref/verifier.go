package crossref

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/grant-verifier/internal/model"
	"github.com/sells-group/grant-verifier/internal/resilience"
)

const (
	// DefaultTimeout bounds one research call.
	DefaultTimeout = 90 * time.Second
	// DefaultMaxTokens is the response budget for one research call.
	DefaultMaxTokens = 4096
)

// Failure classes reported through the OnFailure hook.
const (
	FailureTransport  = "transport"
	FailureTimeout    = "timeout"
	FailureBreaker    = "breaker_open"
	FailureEmpty      = "empty"
	FailureUnparsable = "unparsable"
)

// Verifier re-researches grants and diffs them against the stored record.
type Verifier struct {
	svc       ResearchService
	timeout   time.Duration
	maxTokens int64
	breaker   *resilience.CircuitBreaker
	validate  *validator.Validate
	now       func() time.Time
	onFailure func(class string)
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTimeout sets the per-call research timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithMaxTokens sets the response token budget.
func WithMaxTokens(n int64) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxTokens = n
		}
	}
}

// WithBreaker routes research calls through cb. A nil breaker is ignored.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(v *Verifier) { v.breaker = cb }
}

// WithClock overrides the date used in prompts.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithFailureHook is called with a failure class whenever the phase degrades.
func WithFailureHook(fn func(class string)) Option {
	return func(v *Verifier) { v.onFailure = fn }
}

// NewVerifier creates a Verifier backed by svc.
func NewVerifier(svc ResearchService, opts ...Option) *Verifier {
	v := &Verifier{
		svc:       svc,
		timeout:   DefaultTimeout,
		maxTokens: DefaultMaxTokens,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Provider returns the research provider name.
func (v *Verifier) Provider() string {
	return v.svc.Name()
}

// Verify researches g once. It never returns an error: any failure yields a
// result with Ran=false.
func (v *Verifier) Verify(ctx context.Context, g *model.Grant) model.CrossReferenceResult {
	result := notRun(v.svc.Name())
	log := zap.L().With(zap.String("grant_id", g.ID), zap.String("provider", v.svc.Name()))

	req := BuildPrompt(g, v.now())
	req.MaxTokens = v.maxTokens

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	call := func(ctx context.Context) (*ResearchResponse, error) {
		return v.svc.Research(ctx, req)
	}

	var (
		resp *ResearchResponse
		err  error
	)
	if v.breaker != nil {
		resp, err = resilience.ExecuteVal(callCtx, v.breaker, call)
	} else {
		resp, err = call(callCtx)
	}
	if err != nil {
		class := classify(callCtx, err)
		log.Warn("crossref: research failed",
			zap.String("class", class),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
		v.fail(class)
		return result
	}

	text := resp.Text()
	if text == "" {
		log.Warn("crossref: empty research response")
		v.fail(FailureEmpty)
		return result
	}

	parsed := ParseJSON[report](text, v.validate)
	if !parsed.OK() || parsed.Value.empty() {
		reason := parsed.Reason
		if parsed.OK() {
			reason = "no report fields"
		}
		log.Warn("crossref: unparsable research response",
			zap.String("reason", reason),
			zap.Int("text_len", len(text)),
		)
		v.fail(FailureUnparsable)
		return result
	}
	if parsed.Kind == Extracted {
		log.Debug("crossref: research response needed extraction", zap.String("reason", parsed.Reason))
	}

	result = fromReport(v.svc.Name(), parsed.Value)
	if _, ok := result.FreshData["sources"]; !ok && len(resp.Sources) > 0 {
		result.FreshData["sources"] = resp.Sources
	}
	log.Info("crossref: research complete",
		zap.String("parse", parsed.Kind.String()),
		zap.Int("discrepancies", len(result.Discrepancies)),
		zap.Int64("searches", resp.Usage.Searches),
	)
	return result
}

func (v *Verifier) fail(class string) {
	if v.onFailure != nil {
		v.onFailure(class)
	}
}

func notRun(provider string) model.CrossReferenceResult {
	return model.CrossReferenceResult{
		Provider:      provider,
		Discrepancies: []model.Discrepancy{},
		FreshData:     map[string]any{},
	}
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return FailureBreaker
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return FailureTimeout
	default:
		return FailureTransport
	}
}

// fromReport maps a decoded report onto a result. Program existence and
// status failures are appended as critical discrepancies even when the model
// already listed them.
func fromReport(provider string, r report) model.CrossReferenceResult {
	res := model.CrossReferenceResult{
		Ran:                true,
		Provider:           provider,
		AmountMatch:        r.Comparisons.AmountMatch,
		DeadlineMatch:      r.Comparisons.DeadlineMatch,
		EligibilityMatch:   r.Comparisons.EligibilityMatch,
		ProgramFound:       r.ProgramFound.Ptr(),
		ProgramStillActive: r.ProgramStillActive.Ptr(),
		Discrepancies:      make([]model.Discrepancy, 0, len(r.Discrepancies)+2),
		FreshData:          r.FreshData,
		ConfidenceNotes:    r.ConfidenceNotes,
	}
	if res.FreshData == nil {
		res.FreshData = map[string]any{}
	}

	for _, d := range r.Discrepancies {
		res.Discrepancies = append(res.Discrepancies, model.Discrepancy{
			Field:       d.Field,
			StoredValue: d.StoredValue,
			FreshValue:  d.FreshValue,
			Severity:    model.NormalizeSeverity(d.Severity),
			Explanation: d.Explanation,
		})
	}

	if r.ProgramFound == model.MatchNo {
		res.Discrepancies = append(res.Discrepancies, model.Discrepancy{
			Field:       "program_existence",
			StoredValue: true,
			FreshValue:  false,
			Severity:    model.SeverityCritical,
			Explanation: "Program could not be found in official sources",
		})
	}
	if r.ProgramStillActive == model.MatchNo {
		res.Discrepancies = append(res.Discrepancies, model.Discrepancy{
			Field:       "program_status",
			StoredValue: "active",
			FreshValue:  "inactive",
			Severity:    model.SeverityCritical,
			Explanation: "Program is no longer active",
		})
	}
	return res
}
