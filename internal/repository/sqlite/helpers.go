package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hydrovalley/internal/domain"
)

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to a nullable JSON string, NULL for nil
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// To add a column to runs: append it to runRow, scanArgs, runColumns and
// runInsertArgs in the same position, then add a migration with
// addColumnIfNotExists. Column order must match across all four.

// runRow holds all columns from a run query for scanning
type runRow struct {
	ID          string
	SessionID   string
	Fingerprint string
	Status      string
	Error       sql.NullString
	StartedAt   time.Time
	FinishedAt  time.Time
	Model       sql.NullString
	ResultsJSON sql.NullString
	Entities    int
}

// scanArgs returns pointers in runColumns order
func (r *runRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,          // 1
		&r.SessionID,   // 2
		&r.Fingerprint, // 3
		&r.Status,      // 4
		&r.Error,       // 5
		&r.StartedAt,   // 6
		&r.FinishedAt,  // 7
		&r.Model,       // 8
		&r.ResultsJSON, // 9
		&r.Entities,    // 10
	}
}

// toDomain converts the row. Model text and results are only decoded when
// full is set.
func (r *runRow) toDomain(full bool) (*domain.Run, error) {
	run := &domain.Run{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Fingerprint: domain.Fingerprint(r.Fingerprint),
		Status:      domain.RunStatus(r.Status),
		Error:       nullToString(r.Error),
		StartedAt:   r.StartedAt.UTC(),
		FinishedAt:  r.FinishedAt.UTC(),
		Entities:    r.Entities,
	}
	if !full {
		return run, nil
	}

	run.Model = nullToString(r.Model)
	if r.ResultsJSON.Valid {
		run.Results = &domain.MergedResults{}
		if err := unmarshalJSONField(r.ResultsJSON, run.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return run, nil
}

const runColumns = `id, session_id, fingerprint, status, error,
	started_at, finished_at, model, results, entities`

// runInsertArgs prepares arguments in runColumns order
func runInsertArgs(run *domain.Run) ([]interface{}, error) {
	var (
		resultsJSON sql.NullString
		entities    = run.Entities
		err         error
	)
	if run.Results != nil {
		resultsJSON, err = marshalToNull(run.Results)
		if err != nil {
			return nil, fmt.Errorf("marshal results: %w", err)
		}
		entities = len(run.Results.Volumes)
	}

	return []interface{}{
		run.ID,
		run.SessionID,
		string(run.Fingerprint),
		string(run.Status),
		stringToNull(run.Error),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		stringToNull(run.Model),
		resultsJSON,
		entities,
	}, nil
}
