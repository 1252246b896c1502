// Package trust rates how authoritative a grant's source domain is.
package trust

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tables holds the domain lists used for classification. A pattern starting
// with "." matches hostnames ending in it; any other pattern matches the
// hostname itself or any subdomain of it.
type Tables struct {
	GovernmentPatterns []string `yaml:"government_patterns" mapstructure:"government_patterns"`
	TopAuthority       []string `yaml:"top_authority" mapstructure:"top_authority"`
	Institutional      []string `yaml:"institutional" mapstructure:"institutional"`
	ProfessionalTLDs   []string `yaml:"professional_tlds" mapstructure:"professional_tlds"`
}

// DefaultTables returns the built-in national, regional and EU public-sector
// lists.
func DefaultTables() Tables {
	return Tables{
		GovernmentPatterns: []string{
			// National suffixes.
			".gob.es", ".gov", ".gov.uk", ".gouv.fr", ".bund.de", ".gov.it",
			".gov.pt", ".gc.ca", ".gov.au", ".govt.nz", ".admin.ch",
			// EU institutions.
			".europa.eu", "europa.eu",
			// Spanish national bodies outside .gob.es.
			"boe.es", "cdti.es", "sepe.es", "seg-social.es", "agenciatributaria.es",
			"infosubvenciones.es",
			// Spanish regional governments.
			"juntadeandalucia.es", "gencat.cat", "madrid.org", "comunidad.madrid",
			"gva.es", "xunta.gal", "euskadi.eus", "navarra.es", "jcyl.es",
			"carm.es", "aragon.es", "castillalamancha.es", "juntaex.es",
			"larioja.org", "caib.es", "gobiernodecanarias.org", "asturias.es",
			"cantabria.es",
		},
		TopAuthority: []string{
			"boe.es", "infosubvenciones.es", "hacienda.gob.es", "cdti.es",
			"europa.eu", "grants.gov", "sam.gov", "gov.uk",
		},
		Institutional: []string{
			"ico.es", "enisa.es", "idae.es", "red.es", "fundae.es", "camara.es",
			"csic.es", "eib.org", "eif.org", "ukri.org", "horizon-europe.org",
		},
		ProfessionalTLDs: []string{".org", ".com", ".net", ".eu"},
	}
}

// LoadTables reads a YAML tables file. Lists missing from the file fall back
// to the defaults.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, eris.Wrapf(err, "trust: read tables %s", path)
	}

	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, eris.Wrapf(err, "trust: parse tables %s", path)
	}

	def := DefaultTables()
	if len(t.GovernmentPatterns) == 0 {
		t.GovernmentPatterns = def.GovernmentPatterns
	}
	if len(t.TopAuthority) == 0 {
		t.TopAuthority = def.TopAuthority
	}
	if len(t.Institutional) == 0 {
		t.Institutional = def.Institutional
	}
	if len(t.ProfessionalTLDs) == 0 {
		t.ProfessionalTLDs = def.ProfessionalTLDs
	}
	return t, t.Validate()
}

// Validate checks that every list is populated and patterns are well formed.
func (t Tables) Validate() error {
	var errs []string

	lists := []struct {
		name     string
		patterns []string
	}{
		{"government_patterns", t.GovernmentPatterns},
		{"top_authority", t.TopAuthority},
		{"institutional", t.Institutional},
		{"professional_tlds", t.ProfessionalTLDs},
	}
	for _, l := range lists {
		if len(l.patterns) == 0 {
			errs = append(errs, l.name+" must not be empty")
			continue
		}
		for _, p := range l.patterns {
			if strings.TrimSpace(p) == "" || p == "." || strings.ContainsAny(p, " /:") {
				errs = append(errs, l.name+": invalid pattern "+`"`+p+`"`)
			}
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("trust: tables validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsGovernment reports whether host matches a government pattern.
func (t Tables) IsGovernment(host string) bool {
	return matchAny(host, t.GovernmentPatterns)
}

func matchAny(host string, patterns []string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}
	for _, p := range patterns {
		if matchPattern(host, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func matchPattern(host, pattern string) bool {
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(host, pattern)
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// NormalizeHost lowercases a hostname and drops a leading "www." and any
// trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}
