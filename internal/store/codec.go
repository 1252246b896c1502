package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/grant-verifier/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

// prepareGrantForWrite assigns an id and timestamps and defaults the
// verification status.
func prepareGrantForWrite(g *model.Grant, now time.Time) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	if g.VerificationStatus == "" {
		g.VerificationStatus = model.StatusUnverified
	}
}

type logJSON struct {
	discrepancies []byte
	freshData     []byte
	issues        []byte
}

// encodeLogJSON marshals the log's JSON columns. Nil slices and maps encode
// as empty values rather than null.
func encodeLogJSON(l *model.VerificationLog) (logJSON, error) {
	var (
		out logJSON
		err error
	)
	discs := l.Discrepancies
	if discs == nil {
		discs = []model.Discrepancy{}
	}
	if out.discrepancies, err = json.Marshal(discs); err != nil {
		return out, err
	}
	fresh := l.FreshData
	if fresh == nil {
		fresh = map[string]any{}
	}
	if out.freshData, err = json.Marshal(fresh); err != nil {
		return out, err
	}
	issues := l.Issues
	if issues == nil {
		issues = []model.Issue{}
	}
	if out.issues, err = json.Marshal(issues); err != nil {
		return out, err
	}
	return out, nil
}

func decodeLogJSON(l *model.VerificationLog, discs, fresh, issues []byte) error {
	l.Discrepancies = []model.Discrepancy{}
	l.FreshData = map[string]any{}
	l.Issues = []model.Issue{}
	if len(discs) > 0 {
		if err := json.Unmarshal(discs, &l.Discrepancies); err != nil {
			return err
		}
	}
	if len(fresh) > 0 {
		if err := json.Unmarshal(fresh, &l.FreshData); err != nil {
			return err
		}
	}
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &l.Issues); err != nil {
			return err
		}
	}
	return nil
}
