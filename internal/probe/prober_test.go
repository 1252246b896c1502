package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grant-verifier/internal/trust"
)

// fakeFetcher returns a canned page or error and records the requested URL.
type fakeFetcher struct {
	page *Page
	err  error
	got  string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*Page, error) {
	f.got = url
	return f.page, f.err
}

func newTestProber(f PageFetcher) *Prober {
	return NewProber(f, trust.DefaultTables())
}

func TestProbe_ReachablePageMentionsGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><head><style>body{color:red}</style>
			<script>var grant = "ignored";</script></head>
			<body><h1>Programa   NEOTEC 2025</h1><p>Ayudas para empresas de base tecnológica.</p></body></html>`)
	}))
	defer srv.Close()

	p := newTestProber(NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second}))
	res := p.Probe(context.Background(), srv.URL+"/neotec", "Programa NEOTEC 2025")

	assert.True(t, res.URLValid)
	require.NotNil(t, res.URLStatusCode)
	assert.Equal(t, http.StatusOK, *res.URLStatusCode)
	assert.True(t, res.URLContainsGrantName)
	assert.Equal(t, "127.0.0.1", res.URLDomain)
	assert.False(t, res.IsGovernmentDomain)
	assert.NotContains(t, res.PageText, "ignored")
	assert.NotContains(t, res.PageText, "color:red")
	assert.Contains(t, res.PageText, "Programa NEOTEC 2025")
}

func TestProbe_ForbiddenCountsAsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = fmt.Fprint(w, "Access denied by bot protection: Programa NEOTEC")
	}))
	defer srv.Close()

	p := newTestProber(NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second}))
	res := p.Probe(context.Background(), srv.URL, "Programa NEOTEC")

	assert.True(t, res.URLValid)
	require.NotNil(t, res.URLStatusCode)
	assert.Equal(t, http.StatusForbidden, *res.URLStatusCode)
	assert.False(t, res.URLContainsGrantName, "403 bodies are not inspected")
	assert.Empty(t, res.PageText)
}

func TestProbe_NotFoundIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := newTestProber(NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second}))
	res := p.Probe(context.Background(), srv.URL+"/gone", "Anything")

	assert.False(t, res.URLValid)
	require.NotNil(t, res.URLStatusCode)
	assert.Equal(t, http.StatusNotFound, *res.URLStatusCode)
}

func TestProbe_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "<p>Kit Digital</p>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProber(NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second}))
	res := p.Probe(context.Background(), srv.URL+"/old", "Kit Digital")

	assert.True(t, res.URLValid)
	assert.Equal(t, http.StatusOK, *res.URLStatusCode)
	assert.True(t, res.URLContainsGrantName)
}

func TestProbe_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listening any more

	p := newTestProber(NewHTTPFetcher(HTTPOptions{Timeout: 2 * time.Second}))
	res := p.Probe(context.Background(), url, "Kit Digital")

	assert.False(t, res.URLValid)
	assert.Nil(t, res.URLStatusCode)
	assert.Empty(t, res.PageText)
	assert.Equal(t, "127.0.0.1", res.URLDomain)
}

func TestProbe_MissingURL(t *testing.T) {
	f := &fakeFetcher{}
	res := newTestProber(f).Probe(context.Background(), "  ", "Kit Digital")

	assert.False(t, res.URLValid)
	assert.Nil(t, res.URLStatusCode)
	assert.Equal(t, "", res.URLDomain)
	assert.Empty(t, f.got, "fetcher should not be called")
}

func TestProbe_AddsSchemeAndClassifiesGovernment(t *testing.T) {
	f := &fakeFetcher{page: &Page{StatusCode: 200, Body: []byte("<p>Kit Digital</p>")}}
	res := newTestProber(f).Probe(context.Background(), "www.acelerapyme.gob.es/kit-digital", "Kit Digital")

	assert.Equal(t, "https://www.acelerapyme.gob.es/kit-digital", f.got)
	assert.Equal(t, "www.acelerapyme.gob.es", res.URLDomain)
	assert.True(t, res.IsGovernmentDomain)
	assert.True(t, res.URLValid)
}

func TestProbe_FetchErrorKeepsDomain(t *testing.T) {
	f := &fakeFetcher{err: errors.New("dial tcp: lookup www.boe.es: no such host")}
	res := newTestProber(f).Probe(context.Background(), "https://www.boe.es/x", "Anything")

	assert.False(t, res.URLValid)
	assert.Nil(t, res.URLStatusCode)
	assert.Equal(t, "www.boe.es", res.URLDomain)
	assert.True(t, res.IsGovernmentDomain)
}

func TestProbe_DecodesLatin1(t *testing.T) {
	body := []byte("<p>Programa de Innovaci\xf3n Industrial</p>")
	f := &fakeFetcher{page: &Page{StatusCode: 200, ContentType: "text/html; charset=ISO-8859-1", Body: body}}
	res := newTestProber(f).Probe(context.Background(), "https://example.com", "Programa de Innovación Industrial")

	assert.Contains(t, res.PageText, "Innovación")
	assert.True(t, res.URLContainsGrantName)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, url, host string
	}{
		{"example.com", "https://example.com", "example.com"},
		{"http://Example.com/path", "http://Example.com/path", "example.com"},
		{"HTTPS://www.BOE.es", "HTTPS://www.BOE.es", "www.boe.es"},
		{"//cdn.example.org/a", "https://cdn.example.org/a", "cdn.example.org"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, host, err := NormalizeURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, strings.ToLower(tt.url), strings.ToLower(u))
		})
	}
}

func TestMentionsGrant(t *testing.T) {
	text := "Convocatoria de ayudas para la transformación digital de pequeñas empresas, segmento III."

	tests := []struct {
		name  string
		grant string
		want  bool
	}{
		{"exact case insensitive", "TRANSFORMACIÓN DIGITAL", true},
		{"half of long words", "Ayudas Transformación Digital Autónomos", true}, // ayudas, transformación, digital present; autónomos absent
		{"less than half", "Programa Horizonte Europa Digital", false},          // only digital of 4
		{"short words ignored", "Kit de la UE", false},                          // no words > 4 chars
		{"empty name", "", false},
		{"exactly half", "Subvenciones Pequeñas", true}, // pequeñas present, subvenciones absent
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MentionsGrant(text, tt.grant))
		})
	}
}

func TestExtractText_Truncates(t *testing.T) {
	html := "<div>" + strings.Repeat("ñ", MaxPageTextChars+500) + "</div>"
	text := ExtractText(html)
	assert.Equal(t, MaxPageTextChars, utf8.RuneCountInString(text))
}

func TestExtractText_CollapsesWhitespace(t *testing.T) {
	text := ExtractText("<p>Line one</p>\n\n\t<p>Line&nbsp;two &amp; three</p>")
	assert.Equal(t, "Line one Line two & three", text)
}
