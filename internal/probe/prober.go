package probe

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/grant-verifier/internal/model"
	"github.com/sells-group/grant-verifier/internal/resilience"
	"github.com/sells-group/grant-verifier/internal/trust"
)

// Prober checks a grant's claimed source URL.
type Prober struct {
	fetcher PageFetcher
	tables  trust.Tables
}

// NewProber creates a Prober. Government classification uses tables.
func NewProber(fetcher PageFetcher, tables trust.Tables) *Prober {
	return &Prober{fetcher: fetcher, tables: tables}
}

// NormalizeURL prefixes https:// when rawURL has no scheme and returns the
// URL along with its lowercased hostname.
func NormalizeURL(rawURL string) (string, string, error) {
	rawURL = strings.TrimSpace(rawURL)
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		rawURL = "https://" + strings.TrimPrefix(rawURL, "//")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	return u.String(), strings.ToLower(u.Hostname()), nil
}

// Probe fetches rawURL once and reports reachability and relevance. It never
// returns an error: transport failures produce an unreachable result.
func (p *Prober) Probe(ctx context.Context, rawURL, grantName string) model.ProbeResult {
	var result model.ProbeResult
	if strings.TrimSpace(rawURL) == "" {
		return result
	}

	log := zap.L().With(zap.String("url", rawURL))

	target, host, err := NormalizeURL(rawURL)
	if err != nil || host == "" {
		log.Debug("probe: unparseable url", zap.Error(err))
		return result
	}
	result.URLDomain = host
	result.IsGovernmentDomain = p.tables.IsGovernment(host)

	page, err := p.fetcher.Fetch(ctx, target)
	if err != nil {
		log.Warn("probe: fetch failed",
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
		return result
	}

	status := page.StatusCode
	result.URLStatusCode = &status
	// A 403 is usually bot protection in front of a real page.
	result.URLValid = page.OK() || status == http.StatusForbidden

	if page.OK() {
		result.PageText = ExtractText(decodeBody(page.Body, page.ContentType))
		result.URLContainsGrantName = MentionsGrant(result.PageText, grantName)
	}

	log.Debug("probe: complete",
		zap.Int("status", status),
		zap.Bool("valid", result.URLValid),
		zap.Bool("mentions_grant", result.URLContainsGrantName),
	)
	return result
}
