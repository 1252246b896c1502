package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grant-verifier/internal/model"
)

const importFixture = `[
  {
    "id": "kit-digital",
    "name": "Kit Digital",
    "official_url": "https://www.acelerapyme.gob.es/kit-digital",
    "funding_source": "Next Generation EU",
    "max_amount": 12000,
    "deadline": "2025-12-31",
    "eligibility_summary": "Pymes y autónomos"
  },
  {
    "name": "Programa NEOTEC",
    "official_url": "cdti.es/neotec"
  }
]`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grants.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadImportFile(t *testing.T) {
	grants, err := readImportFile(writeFixture(t, importFixture))
	require.NoError(t, err)
	require.Len(t, grants, 2)

	assert.Equal(t, "kit-digital", grants[0].ID)
	require.NotNil(t, grants[0].Deadline)
	assert.Equal(t, "2025-12-31", grants[0].DeadlineString())
	require.NotNil(t, grants[0].MaxAmount)
	assert.InDelta(t, 12000, *grants[0].MaxAmount, 0.001)

	assert.Empty(t, grants[1].ID)
	assert.Nil(t, grants[1].Deadline)
}

func TestReadImportFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad json", `{`, "parse"},
		{"missing name", `[{"id":"x"}]`, "name is required"},
		{"bad deadline", `[{"name":"x","deadline":"31/12/2025"}]`, "parse deadline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readImportFile(writeFixture(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := readImportFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestGrantsImportAndList(t *testing.T) {
	useTestConfig(t)

	out, err := runCmd(t, grantsImportCmd, writeFixture(t, importFixture))
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 grants")

	grantsListJSON = true
	grantsListLimit = 100
	grantsListStatus = ""
	t.Cleanup(func() { grantsListJSON = false })

	out, err = runCmd(t, grantsListCmd)
	require.NoError(t, err)

	var grants []model.Grant
	require.NoError(t, json.Unmarshal([]byte(out), &grants))
	require.Len(t, grants, 2)
	for _, g := range grants {
		assert.NotEmpty(t, g.ID)
		assert.Equal(t, model.StatusUnverified, g.VerificationStatus)
	}
}

func TestGrantsList_Table(t *testing.T) {
	useTestConfig(t)
	_, err := runCmd(t, grantsImportCmd, writeFixture(t, importFixture))
	require.NoError(t, err)

	grantsListJSON = false
	grantsListStatus = "unverified"
	t.Cleanup(func() { grantsListStatus = "" })

	out, err := runCmd(t, grantsListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "kit-digital")
	assert.Contains(t, out, "Programa NEOTEC")
}

func TestGrantsList_InvalidStatus(t *testing.T) {
	useTestConfig(t)
	grantsListStatus = "pending"
	t.Cleanup(func() { grantsListStatus = "" })

	_, err := runCmd(t, grantsListCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --status")
}

func TestHistory_UnknownGrant(t *testing.T) {
	useTestConfig(t)

	_, err := runCmd(t, historyCmd, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMigrate(t *testing.T) {
	useTestConfig(t)

	out, err := runCmd(t, migrateCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	// Idempotent.
	_, err = runCmd(t, migrateCmd)
	assert.NoError(t, err)
}

func TestMigrate_InvalidConfig(t *testing.T) {
	c := useTestConfig(t)
	c.Store.Driver = ""

	_, err := runCmd(t, migrateCmd)
	assert.Error(t, err)
}
