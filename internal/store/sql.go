package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/norms"
)

// SQL is the database-backed store. Placeholders use $n, which both pgx and
// modernc sqlite accept; each query lists them in ascending order.
type SQL struct {
	db  *DB
	now func() time.Time
}

// NewSQL wraps an open, migrated database.
func NewSQL(db *DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

// DB returns the underlying database.
func (s *SQL) DB() *DB {
	return s.db
}

// CreateInstance inserts a new instance.
func (s *SQL) CreateInstance(ctx context.Context, inst models.AssessmentInstance) error {
	if inst.Status == "" {
		inst.Status = models.StatusDraft
	}
	var exists int
	err := s.db.SQL.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assessment_instances WHERE id = $1`, inst.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking instance %s: %w", inst.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("instance %s: %w", inst.ID, ErrAlreadyExists)
	}
	_, err = s.db.SQL.ExecContext(ctx, `
INSERT INTO assessment_instances (id, scale_id, subject_id, age_months, gender, administered_at, status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inst.ID, inst.ScaleID, inst.SubjectID, inst.AgeMonths, string(inst.Gender),
		inst.AdministeredAt.UnixMilli(), string(inst.Status), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("creating instance %s: %w", inst.ID, err)
	}
	return nil
}

// RecordResponses appends responses to a draft instance in one transaction.
func (s *SQL) RecordResponses(ctx context.Context, id string, responses []models.ItemResponse) error {
	return WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM assessment_instances WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("instance %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if models.Status(status) != models.StatusDraft {
			return fmt.Errorf("instance %s (%s): %w", id, status, ErrNotDraft)
		}
		for _, r := range responses {
			_, err := tx.ExecContext(ctx, `
INSERT INTO item_responses (instance_id, item_id, sequence, value, omitted)
VALUES ($1, $2, $3, $4, $5)`,
				id, r.ItemID, r.Sequence, r.Value, r.Omitted)
			if err != nil {
				return fmt.Errorf("recording item %d: %w", r.ItemID, err)
			}
		}
		return nil
	})
}

const instanceColumns = `id, scale_id, subject_id, age_months, gender, administered_at, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (models.AssessmentInstance, error) {
	var (
		inst           models.AssessmentInstance
		gender, status string
		administered   int64
	)
	err := row.Scan(&inst.ID, &inst.ScaleID, &inst.SubjectID, &inst.AgeMonths, &gender, &administered, &status)
	if err != nil {
		return inst, err
	}
	inst.Gender = models.Gender(gender)
	inst.Status = models.Status(status)
	inst.AdministeredAt = time.UnixMilli(administered).UTC()
	return inst, nil
}

// LoadInstance returns one instance.
func (s *SQL) LoadInstance(ctx context.Context, id string) (models.AssessmentInstance, error) {
	row := s.db.SQL.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM assessment_instances WHERE id = $1`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inst, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return inst, fmt.Errorf("loading instance %s: %w", id, err)
	}
	return inst, nil
}

// ListInstances returns instances with the given status, or all of them when
// status is empty, ordered by id.
func (s *SQL) ListInstances(ctx context.Context, status models.Status) ([]models.AssessmentInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM assessment_instances`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`

	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	defer rows.Close()

	var out []models.AssessmentInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// LoadResponses returns every response recorded for an instance in
// administration order.
func (s *SQL) LoadResponses(ctx context.Context, id string) ([]models.ItemResponse, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
SELECT item_id, sequence, value, omitted FROM item_responses
WHERE instance_id = $1 ORDER BY sequence, item_id`, id)
	if err != nil {
		return nil, fmt.Errorf("loading responses %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.ItemResponse
	for rows.Next() {
		var r models.ItemResponse
		if err := rows.Scan(&r.ItemID, &r.Sequence, &r.Value, &r.Omitted); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateInstanceStatus sets the status of an instance.
func (s *SQL) UpdateInstanceStatus(ctx context.Context, id string, status models.Status) error {
	res, err := s.db.SQL.ExecContext(ctx,
		`UPDATE assessment_instances SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating instance %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveScoreResult replaces the result of an instance and marks it completed in
// a single transaction. On any failure neither change is visible.
func (s *SQL) SaveScoreResult(ctx context.Context, id string, result *models.ScoreResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return &PersistenceError{Op: "encode score result", Err: err}
	}
	err = WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO score_results (instance_id, scale_id, overall_label, verdict, input_digest, result_json, scored_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (instance_id) DO UPDATE SET
  scale_id = excluded.scale_id,
  overall_label = excluded.overall_label,
  verdict = excluded.verdict,
  input_digest = excluded.input_digest,
  result_json = excluded.result_json,
  scored_at = excluded.scored_at`,
			id, result.ScaleID, result.Overall.Label, string(result.Validity.Verdict),
			result.InputDigest, string(data), result.ScoredAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("upsert result: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE assessment_instances SET status = $1, updated_at = $2 WHERE id = $3`,
			string(models.StatusCompleted), s.now().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("complete instance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("instance %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Op: "save score result", Err: err}
	}
	return nil
}

// LoadScoreResult returns the stored result of an instance.
func (s *SQL) LoadScoreResult(ctx context.Context, id string) (*models.ScoreResult, error) {
	var data string
	err := s.db.SQL.QueryRowContext(ctx,
		`SELECT result_json FROM score_results WHERE instance_id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading result %s: %w", id, err)
	}
	var res models.ScoreResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", id, err)
	}
	return &res, nil
}

// LoadNorms returns every stored norms stratum.
func (s *SQL) LoadNorms(ctx context.Context) ([]norms.Entry, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
SELECT scale_id, domain, age_group, gender, mean, sd FROM norms
ORDER BY scale_id, domain, age_group, gender`)
	if err != nil {
		return nil, fmt.Errorf("loading norms: %w", err)
	}
	defer rows.Close()

	var out []norms.Entry
	for rows.Next() {
		var e norms.Entry
		if err := rows.Scan(&e.Scale, &e.Domain, &e.AgeGroup, &e.Gender, &e.Mean, &e.SD); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutNorms upserts norms strata in one transaction.
func (s *SQL) PutNorms(ctx context.Context, entries []norms.Entry) error {
	return WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		for _, e := range entries {
			gender := e.Gender
			if gender == "" {
				gender = string(models.GenderCombined)
			}
			_, err := tx.ExecContext(ctx, `
INSERT INTO norms (scale_id, domain, age_group, gender, mean, sd)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (scale_id, domain, age_group, gender) DO UPDATE SET
  mean = excluded.mean,
  sd = excluded.sd`,
				e.Scale, e.Domain, e.AgeGroup, gender, e.Mean, e.SD)
			if err != nil {
				return fmt.Errorf("storing norms %s/%s/%s: %w", e.Scale, e.Domain, e.AgeGroup, err)
			}
		}
		return nil
	})
}
