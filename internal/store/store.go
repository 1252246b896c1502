// Package store persists grants and their verification history.
package store

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // registers the postgres dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // registers the sqlite3 dialect
	"github.com/rotisserie/eris"

	"github.com/sells-group/grant-verifier/internal/model"
)

// ErrNotFound is returned when a grant does not exist.
var ErrNotFound = eris.New("store: not found")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	defaultLogLimit  = 20
)

// GrantFilter specifies criteria for listing grants.
type GrantFilter struct {
	Status model.VerificationStatus `json:"status,omitempty"`
	Limit  int                      `json:"limit,omitempty"`
	Offset int                      `json:"offset,omitempty"`
}

// Store defines the persistence interface for grants and verification logs.
type Store interface {
	// Grants
	GetGrant(ctx context.Context, id string) (*model.Grant, error)
	ListGrants(ctx context.Context, filter GrantFilter) ([]model.Grant, error)
	UpsertGrant(ctx context.Context, g *model.Grant) error
	ImportGrants(ctx context.Context, grants []model.Grant) (int64, error)
	UpdateGrantVerification(ctx context.Context, id string, upd model.GrantVerificationUpdate) error

	// Verification logs
	InsertVerificationLog(ctx context.Context, log *model.VerificationLog) error
	ListVerificationLogs(ctx context.Context, grantID string, limit int) ([]model.VerificationLog, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var grantColumns = []any{
	"id", "name", "official_url", "funding_source", "min_amount", "max_amount",
	"deadline", "eligibility_summary", "verification_status",
	"verification_confidence", "last_verified_at", "verification_details",
	"created_at", "updated_at",
}

// listGrantsQuery builds the ListGrants SELECT for the given goqu dialect
// with prepared placeholders.
func listGrantsQuery(dialect string, f GrantFilter) (string, []any, error) {
	ds := goqu.Dialect(dialect).From("grants").Select(grantColumns...).Prepared(true)
	if f.Status != "" {
		ds = ds.Where(goqu.I("verification_status").Eq(string(f.Status)))
	}
	ds = ds.Order(goqu.I("updated_at").Desc(), goqu.I("id").Asc()).
		Limit(uint(clampLimit(f.Limit, defaultListLimit)))
	if f.Offset > 0 {
		ds = ds.Offset(uint(f.Offset))
	}
	q, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, eris.Wrap(err, "store: build list grants query")
	}
	return q, args, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxListLimit)
}
