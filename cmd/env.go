package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grant-verifier/internal/config"
	"github.com/sells-group/grant-verifier/internal/crossref"
	"github.com/sells-group/grant-verifier/internal/probe"
	"github.com/sells-group/grant-verifier/internal/resilience"
	"github.com/sells-group/grant-verifier/internal/store"
	"github.com/sells-group/grant-verifier/internal/trust"
	"github.com/sells-group/grant-verifier/internal/verify"
	anthropicpkg "github.com/sells-group/grant-verifier/pkg/anthropic"
	"github.com/sells-group/grant-verifier/pkg/perplexity"
)

// verifyEnv holds the store and the verification service shared by the
// verify, batch and serve commands.
type verifyEnv struct {
	Store   store.Store
	Service *verify.Service
}

// Close releases the store.
func (e *verifyEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initVerifyEnv validates cfg for mode, opens and migrates the store, and
// builds the verification service. Callers should defer env.Close().
func initVerifyEnv(ctx context.Context, mode string) (*verifyEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	tables, err := initTables()
	if err != nil {
		return nil, err
	}

	xref, err := initCrossref()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := probe.NewHTTPFetcher(probe.HTTPOptions{
		UserAgent:    cfg.Probe.UserAgent,
		Timeout:      time.Duration(cfg.Probe.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.Probe.MaxBodyBytes,
	})

	svc := verify.NewService(st, probe.NewProber(fetcher, tables), trust.NewScorer(tables), xref)
	return &verifyEnv{Store: st, Service: svc}, nil
}

// openStore opens the configured store and applies the schema.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "grants.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initTables() (trust.Tables, error) {
	if cfg.Trust.TablesPath == "" {
		return trust.DefaultTables(), nil
	}
	tables, err := trust.LoadTables(cfg.Trust.TablesPath)
	if err != nil {
		return trust.Tables{}, eris.Wrap(err, "load trust tables")
	}
	return tables, nil
}

// initCrossref builds the cross-reference verifier for the configured
// provider. It returns a nil verifier when the provider has no key; the
// service then reports every run as unavailable.
func initCrossref() (verify.CrossReferencer, error) {
	key := cfg.ResearchKey()
	if key == "" {
		zap.L().Warn("research provider not configured, verification unavailable",
			zap.String("provider", cfg.Research.Provider),
		)
		return nil, nil
	}

	var svc crossref.ResearchService
	switch cfg.Research.Provider {
	case config.ProviderAnthropic:
		opts := []anthropicpkg.Option{anthropicpkg.WithMaxRetries(0)}
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		client := anthropicpkg.NewClient(key, opts...)
		svc = crossref.NewAnthropicResearcher(client, cfg.Anthropic.Model, cfg.Research.MaxSearches)
	case config.ProviderPerplexity:
		client := perplexity.NewClient(key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		svc = crossref.NewPerplexityResearcher(client, cfg.Perplexity.Model, cfg.Perplexity.DomainFilter, cfg.Perplexity.RecencyFilter)
	case config.ProviderOpenAI:
		svc = crossref.NewOpenAIResearcher(key, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	default:
		return nil, eris.Errorf("unsupported research provider: %s", cfg.Research.Provider)
	}

	opts := []crossref.Option{
		crossref.WithTimeout(time.Duration(cfg.Research.TimeoutSecs) * time.Second),
		crossref.WithMaxTokens(cfg.Research.MaxTokens),
		crossref.WithFailureHook(verify.RecordCrossrefFailure),
	}
	if bc, ok := resilience.FromBreakerConfig(cfg.Research.BreakerThreshold, cfg.Research.BreakerResetSecs); ok {
		opts = append(opts, crossref.WithBreaker(resilience.NewCircuitBreaker(bc)))
	}
	return crossref.NewVerifier(svc, opts...), nil
}
