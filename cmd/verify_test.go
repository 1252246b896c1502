package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grant-verifier/internal/config"
	"github.com/sells-group/grant-verifier/internal/model"
	"github.com/sells-group/grant-verifier/internal/verify"
)

const researchReport = `{"program_found": true, "program_still_active": true,
  "fresh_data": {"max_amount": 12000},
  "comparisons": {"amount_match": true, "deadline_match": true, "eligibility_match": true},
  "discrepancies": []}`

// newResearchServer fakes the Perplexity chat completions endpoint.
func newResearchServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pplx-test", r.Header.Get("Authorization"))
		content, _ := json.Marshal(researchReport)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"id":"r1","model":"sonar-pro","choices":[{"index":0,"message":{"role":"assistant","content":%s}}],"usage":{"prompt_tokens":500,"completion_tokens":80}}`, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGrantPage(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><body><h1>Kit Digital</h1><p>Ayudas para la digitalización de pymes.</p></body></html>")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupVerifyFixture configures Perplexity research against a fake server and
// imports one grant whose official page is served locally.
func setupVerifyFixture(t *testing.T) *atomic.Int32 {
	t.Helper()
	calls := &atomic.Int32{}
	research := newResearchServer(t, calls)
	page := newGrantPage(t)

	c := useTestConfig(t)
	c.Research.Provider = config.ProviderPerplexity
	c.Perplexity = config.PerplexityConfig{Key: "pplx-test", BaseURL: research.URL, Model: "sonar-pro"}

	fixture := fmt.Sprintf(`[{"id":"kit-digital","name":"Kit Digital","official_url":%q,"max_amount":12000,"deadline":"2025-12-31","eligibility_summary":"Pymes"}]`, page.URL+"/kit-digital")
	_, err := runCmd(t, grantsImportCmd, writeFixture(t, fixture))
	require.NoError(t, err)
	return calls
}

func TestVerifyCommand_JSON(t *testing.T) {
	calls := setupVerifyFixture(t)

	verifyGrantID = "kit-digital"
	verifyJSON = true
	t.Cleanup(func() { verifyGrantID, verifyJSON = "", false })

	out, err := runCmd(t, verifyCmd)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	var resp verify.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "kit-digital", resp.GrantID)
	assert.Equal(t, 6, resp.ChecksTotal, "crossref comparisons are counted")
	assert.Empty(t, resp.Discrepancies)
	assert.NotEmpty(t, resp.TrustScore.SourceType)
	assert.GreaterOrEqual(t, resp.Confidence, 0)
	assert.LessOrEqual(t, resp.Confidence, 100)

	historyJSON = true
	t.Cleanup(func() { historyJSON = false })
	out, err = runCmd(t, historyCmd, "kit-digital")
	require.NoError(t, err)

	var logs []model.VerificationLog
	require.NoError(t, json.Unmarshal([]byte(out), &logs))
	require.Len(t, logs, 1)
	assert.True(t, logs[0].URLValid)
	assert.True(t, logs[0].URLContainsGrantName)
	assert.True(t, logs[0].CrossrefRan)
	assert.Equal(t, resp.Confidence, logs[0].Confidence)
	assert.Equal(t, resp.Status, logs[0].Status)
}

func TestVerifyCommand_Text(t *testing.T) {
	setupVerifyFixture(t)

	verifyGrantID = "kit-digital"
	t.Cleanup(func() { verifyGrantID = "" })

	out, err := runCmd(t, verifyCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "grant:       kit-digital")
	assert.Contains(t, out, "checks:      ")
}

func TestVerifyCommand_UnknownGrant(t *testing.T) {
	setupVerifyFixture(t)

	verifyGrantID = "missing"
	t.Cleanup(func() { verifyGrantID = "" })

	_, err := runCmd(t, verifyCmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, verify.ErrNotFound)
}

func TestVerifyCommand_MissingKey(t *testing.T) {
	useTestConfig(t)

	verifyGrantID = "kit-digital"
	t.Cleanup(func() { verifyGrantID = "" })

	_, err := runCmd(t, verifyCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestBatchCommand(t *testing.T) {
	calls := setupVerifyFixture(t)

	batchStatus = "unverified"
	t.Cleanup(func() { batchStatus = "unverified" })

	out, err := runCmd(t, batchCmd)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Contains(t, out, "kit-digital\t")
	assert.Contains(t, out, "total=1")
	assert.Contains(t, out, "errors=0")

	// Verified grants drop out of the unverified selection.
	out, err = runCmd(t, batchCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "total=0")
}

func TestBatchCommand_InvalidStatus(t *testing.T) {
	useTestConfig(t)
	batchStatus = "done"
	t.Cleanup(func() { batchStatus = "unverified" })

	_, err := runCmd(t, batchCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --status")
}
