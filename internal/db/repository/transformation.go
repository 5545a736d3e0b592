package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"transform-registry/internal/domain"
)

var _ domain.TransformationRepository = (*TransformationRepo)(nil)

// maxNamedDependents bounds how many dependent ids a DependentsExist error lists.
const maxNamedDependents = 5

const transformationColumns = `
	t.id, t.job_id, t.type, t.function_text, t.function_name, t.input_query,
	t.target_table, t.depends_on, t.parameters, t.output_expression,
	t.materialized, t.function_only, t.creation_date, t.process_date,
	(SELECT json_group_array(table_name) FROM (
		SELECT table_name FROM transformation_trigger_tables tt
		WHERE tt.transformation_id = t.id ORDER BY tt.position
	)) AS trigger_tables`

// TransformationRepo stores transformation records in SQLite.
//
// Writes go through the single-connection write pool; each one is a single
// conditional statement inside an immediate transaction, so the dependency
// checks it carries hold at commit time.
type TransformationRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewTransformationRepo creates a new TransformationRepo.
func NewTransformationRepo(write, read *sql.DB) *TransformationRepo {
	return &TransformationRepo{write: write, read: read}
}

// Define upserts t by id and rewrites its trigger tables. When t.DependsOn is
// set, the row is only written while the parent exists in the same job and
// no existing dependent would be left in another job.
func (r *TransformationRepo) Define(ctx context.Context, t *domain.Transformation) (string, error) {
	if t == nil {
		return "", domain.ErrMissingField("id")
	}

	var params sql.NullString
	if len(t.Parameters) > 0 {
		params = sql.NullString{String: string(t.Parameters), Valid: true}
	}
	dependsOn := nullString(t.DependsOn)

	err := withTx(ctx, r.write, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transformations (
				id, job_id, type, function_text, function_name, input_query,
				target_table, depends_on, parameters, output_expression,
				materialized, function_only, creation_date, process_date
			)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL
			WHERE (? IS NULL OR EXISTS (
				SELECT 1 FROM transformations WHERE id = ? AND job_id = ?
			))
			AND NOT EXISTS (
				SELECT 1 FROM transformations WHERE depends_on = ? AND job_id <> ?
			)
			ON CONFLICT(id) DO UPDATE SET
				job_id = excluded.job_id,
				type = excluded.type,
				function_text = excluded.function_text,
				function_name = excluded.function_name,
				input_query = excluded.input_query,
				target_table = excluded.target_table,
				depends_on = excluded.depends_on,
				parameters = excluded.parameters,
				output_expression = excluded.output_expression,
				materialized = excluded.materialized,
				function_only = excluded.function_only,
				creation_date = excluded.creation_date,
				process_date = NULL
		`,
			t.ID, t.JobID, string(t.Type), t.FunctionText, nullString(t.FunctionName), nullString(t.InputQuery),
			nullString(t.TargetTable), dependsOn, params, nullString(t.OutputExpression),
			boolToInt(t.Materialized), boolToInt(t.FunctionOnly), formatTime(t.CreationDate),
			dependsOn, dependsOn, t.JobID,
			t.ID, t.JobID,
		)
		if err != nil {
			return mapDBError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return classifyRejectedDefine(ctx, tx, t)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transformation_trigger_tables WHERE transformation_id = ?`, t.ID,
		); err != nil {
			return mapDBError(err)
		}
		for i, table := range t.TriggerTables {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transformation_trigger_tables (transformation_id, position, table_name)
				VALUES (?, ?, ?)
			`, t.ID, i, table); err != nil {
				return mapDBError(err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// classifyRejectedDefine explains why the guarded upsert wrote nothing.
func classifyRejectedDefine(ctx context.Context, tx *sql.Tx, t *domain.Transformation) error {
	dependents, err := dependentIDs(ctx, tx, `
		SELECT id FROM transformations WHERE depends_on = ? AND job_id <> ? ORDER BY id LIMIT ?
	`, t.ID, t.JobID, maxNamedDependents)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return domain.ErrDependentsExist(t.ID, dependents)
	}
	parent := ""
	if t.DependsOn != nil {
		parent = *t.DependsOn
	}
	return domain.ErrUnknownDependency(parent, t.JobID)
}

// Get returns a transformation by id.
func (r *TransformationRepo) Get(ctx context.Context, id string) (*domain.Transformation, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+transformationColumns+` FROM transformations t WHERE t.id = ?`, id)
	t, err := scanTransformation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownID(id)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return t, nil
}

// Delete removes id unless another record depends on it.
func (r *TransformationRepo) Delete(ctx context.Context, id string) (string, error) {
	err := withTx(ctx, r.write, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM transformations
			WHERE id = ? AND NOT EXISTS (
				SELECT 1 FROM transformations WHERE depends_on = ?
			)
		`, id, id)
		if err != nil {
			return mapDBError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		dependents, err := dependentIDs(ctx, tx,
			`SELECT id FROM transformations WHERE depends_on = ? ORDER BY id LIMIT ?`,
			id, maxNamedDependents)
		if err != nil {
			return err
		}
		if len(dependents) > 0 {
			return domain.ErrDependentsExist(id, dependents)
		}
		return domain.ErrUnknownID(id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// MarkProcessed sets process_date and leaves every other field untouched.
func (r *TransformationRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	res, err := r.write.ExecContext(ctx,
		`UPDATE transformations SET process_date = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUnknownID(id)
	}
	return nil
}

// FindByDependsOn returns the direct dependents of id ordered by id.
func (r *TransformationRepo) FindByDependsOn(ctx context.Context, id string) ([]domain.Transformation, error) {
	return r.query(ctx,
		`SELECT `+transformationColumns+` FROM transformations t WHERE t.depends_on = ? ORDER BY t.id`, id)
}

// FindByTriggerTable returns the records listing table among their trigger
// tables, ordered by id.
func (r *TransformationRepo) FindByTriggerTable(ctx context.Context, table string) ([]domain.Transformation, error) {
	return r.query(ctx, `
		SELECT `+transformationColumns+` FROM transformations t
		WHERE t.id IN (
			SELECT transformation_id FROM transformation_trigger_tables WHERE table_name = ?
		)
		ORDER BY t.id
	`, table)
}

// List returns a page of transformations ordered by job then id, with the
// total count matching the filter.
func (r *TransformationRepo) List(ctx context.Context, filter domain.TransformationFilter) ([]domain.Transformation, int64, error) {
	jobID := nullString(filter.JobID)

	var total int64
	if err := r.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transformations WHERE (? IS NULL OR job_id = ?)`, jobID, jobID,
	).Scan(&total); err != nil {
		return nil, 0, mapDBError(err)
	}

	items, err := r.query(ctx, `
		SELECT `+transformationColumns+` FROM transformations t
		WHERE (? IS NULL OR t.job_id = ?)
		ORDER BY t.job_id, t.id
		LIMIT ? OFFSET ?
	`, jobID, jobID, filter.Page.Limit(), filter.Page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *TransformationRepo) query(ctx context.Context, stmt string, args ...interface{}) ([]domain.Transformation, error) {
	rows, err := r.read.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Transformation
	for rows.Next() {
		t, err := scanTransformation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransformation(row rowScanner) (*domain.Transformation, error) {
	var (
		t                                   domain.Transformation
		typ, creationDate, triggerTables    string
		functionName, inputQuery, target    sql.NullString
		dependsOn, params, outputExpression sql.NullString
		processDate                         sql.NullString
	)
	if err := row.Scan(
		&t.ID, &t.JobID, &typ, &t.FunctionText, &functionName, &inputQuery,
		&target, &dependsOn, &params, &outputExpression,
		&t.Materialized, &t.FunctionOnly, &creationDate, &processDate,
		&triggerTables,
	); err != nil {
		return nil, err
	}

	t.Type = domain.TransformationType(typ)
	t.FunctionName = stringPtr(functionName)
	t.InputQuery = stringPtr(inputQuery)
	t.TargetTable = stringPtr(target)
	t.DependsOn = stringPtr(dependsOn)
	t.OutputExpression = stringPtr(outputExpression)
	if params.Valid {
		t.Parameters = json.RawMessage(params.String)
	}

	created, err := parseTime(creationDate)
	if err != nil {
		return nil, fmt.Errorf("parse creation_date of %q: %w", t.ID, err)
	}
	t.CreationDate = created
	if processDate.Valid {
		processed, err := parseTime(processDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse process_date of %q: %w", t.ID, err)
		}
		t.ProcessDate = &processed
	}

	if err := json.Unmarshal([]byte(triggerTables), &t.TriggerTables); err != nil {
		return nil, fmt.Errorf("unmarshal trigger tables of %q: %w", t.ID, err)
	}
	if len(t.TriggerTables) == 0 {
		t.TriggerTables = nil
	}
	return &t, nil
}

func dependentIDs(ctx context.Context, tx *sql.Tx, stmt string, args ...interface{}) ([]string, error) {
	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
