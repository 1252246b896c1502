package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_JSON(t *testing.T) {
	type wrapper struct {
		M Match `json:"m"`
	}

	for _, tt := range []struct {
		m    Match
		json string
	}{
		{MatchNotChecked, `{"m":null}`},
		{MatchYes, `{"m":true}`},
		{MatchNo, `{"m":false}`},
	} {
		t.Run(tt.m.String(), func(t *testing.T) {
			b, err := json.Marshal(wrapper{M: tt.m})
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(b))

			var got wrapper
			require.NoError(t, json.Unmarshal([]byte(tt.json), &got))
			assert.Equal(t, tt.m, got.M)
		})
	}

	var missing wrapper
	require.NoError(t, json.Unmarshal([]byte(`{}`), &missing))
	assert.Equal(t, MatchNotChecked, missing.M)

	for _, raw := range []string{`{"m":"yes"}`, `{"m":"unknown"}`, `{"m":1}`, `{"m":{}}`, `{"m":[true]}`} {
		got := wrapper{M: MatchYes}
		require.NoError(t, json.Unmarshal([]byte(raw), &got), raw)
		assert.Equal(t, MatchNotChecked, got.M, raw)
	}

	var bad wrapper
	assert.Error(t, json.Unmarshal([]byte(`{"m":tru}`), &bad))
}

func TestMatch_Ptr(t *testing.T) {
	assert.Nil(t, MatchNotChecked.Ptr())
	assert.Equal(t, MatchYes, MatchFromPtr(MatchYes.Ptr()))
	assert.Equal(t, MatchNo, MatchFromPtr(MatchNo.Ptr()))
	assert.Equal(t, MatchNotChecked, MatchFromPtr(nil))
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, NormalizeSeverity("critical"))
	assert.Equal(t, SeverityWarning, NormalizeSeverity("warning"))
	assert.Equal(t, SeverityInfo, NormalizeSeverity("info"))
	assert.Equal(t, SeverityInfo, NormalizeSeverity("HIGH"))
	assert.Equal(t, SeverityInfo, NormalizeSeverity(""))
}

func TestOutcome_HasSeverity(t *testing.T) {
	o := Outcome{Issues: []Issue{{Severity: SeverityInfo}, {Severity: SeverityWarning}}}
	assert.True(t, o.HasSeverity(SeverityWarning))
	assert.False(t, o.HasSeverity(SeverityCritical))
}

func TestGrant_HasVerification(t *testing.T) {
	g := &Grant{}
	assert.False(t, g.HasVerification())
	g.VerificationStatus = StatusUnverified
	assert.False(t, g.HasVerification())
	g.VerificationStatus = StatusFailed
	assert.True(t, g.HasVerification())
}

func TestGrant_DeadlineString(t *testing.T) {
	g := &Grant{}
	assert.Empty(t, g.DeadlineString())
	d := time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)
	g.Deadline = &d
	assert.Equal(t, "2025-03-09", g.DeadlineString())
}

func TestVerificationStatus_Valid(t *testing.T) {
	assert.True(t, StatusVerified.Valid())
	assert.True(t, StatusUnverified.Valid())
	assert.False(t, VerificationStatus("pending").Valid())
}
