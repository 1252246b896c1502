package trust

import "github.com/sells-group/grant-verifier/internal/model"

// Tier scores. Downstream weighting depends on these exact boundaries.
const (
	ScoreOfficialGovernment = 95
	ScoreGovernment         = 85
	ScoreInstitutional      = 75
	ScoreThirdParty         = 45
	ScoreUnknownDomain      = 25
)

// Scorer maps a source domain onto a TrustScore using injected tables.
type Scorer struct {
	tables Tables
}

// NewScorer creates a Scorer over the given tables.
func NewScorer(tables Tables) *Scorer {
	return &Scorer{tables: tables}
}

// Score rates hostname. It is a pure lookup: the same inputs always produce
// the same score.
func (s *Scorer) Score(hostname string, isGovernment, reachable bool) model.TrustScore {
	host := NormalizeHost(hostname)
	if !reachable || host == "" {
		return model.TrustScore{Score: 0, SourceType: model.SourceUnknown, AuthorityTier: model.TierNone}
	}

	if isGovernment {
		if matchAny(host, s.tables.TopAuthority) {
			return model.TrustScore{Score: ScoreOfficialGovernment, SourceType: model.SourceOfficialGovernment, AuthorityTier: model.TierTop}
		}
		return model.TrustScore{Score: ScoreGovernment, SourceType: model.SourceGovernment, AuthorityTier: model.TierHigh}
	}

	if matchAny(host, s.tables.Institutional) {
		return model.TrustScore{Score: ScoreInstitutional, SourceType: model.SourceInstitutional, AuthorityTier: model.TierHigh}
	}

	if matchAny(host, s.tables.ProfessionalTLDs) {
		return model.TrustScore{Score: ScoreThirdParty, SourceType: model.SourceThirdParty, AuthorityTier: model.TierMedium}
	}

	return model.TrustScore{Score: ScoreUnknownDomain, SourceType: model.SourceUnknown, AuthorityTier: model.TierLow}
}
