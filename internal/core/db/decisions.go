// internal/core/db/decisions.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Decision log.
 *
 * Appends one row per ActionResult of a triggered rule, keyed by the
 * evaluation that produced it. Params and results are stored as JSON; a
 * failed action stores its error text and a NULL result. Rules themselves
 * are never persisted.
 *
 * All rows of one outcome are written in a single transaction so a reader
 * never sees a partially recorded multi-action rule.
 */

// ActionResultRow is one stored action outcome.
type ActionResultRow struct {
	ID           int64          `db:"id"`
	EvaluationID string         `db:"evaluation_id"`
	RuleID       string         `db:"rule_id"`
	RuleName     string         `db:"rule_name"`
	Position     int            `db:"position"`
	ActionName   string         `db:"action_name"`
	ActionParams string         `db:"action_params"`
	ActionStatus string         `db:"action_status"`
	ActionResult sql.NullString `db:"action_result"`
	Error        sql.NullString `db:"error"`
	RecordedAt   time.Time      `db:"recorded_at"`
}

// Params decodes the stored action parameters.
func (r *ActionResultRow) Params() (map[string]any, error) {
	var params map[string]any
	if err := json.Unmarshal([]byte(r.ActionParams), &params); err != nil {
		return nil, fmt.Errorf("decode action_params of row %d: %w", r.ID, err)
	}
	return params, nil
}

// Result decodes the stored action result; nil for failed actions.
func (r *ActionResultRow) Result() (any, error) {
	if !r.ActionResult.Valid {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal([]byte(r.ActionResult.String), &result); err != nil {
		return nil, fmt.Errorf("decode action_result of row %d: %w", r.ID, err)
	}
	return result, nil
}

// StatusCount is the number of stored results of an action with a status.
type StatusCount struct {
	Status string `db:"action_status"`
	Total  int64  `db:"total"`
}

// DecisionLog records action outcomes.
type DecisionLog struct {
	db      *sqlx.DB
	queries *Queries
	now     func() time.Time
}

// NewDecisionLog loads the named queries for db. Run MigrateUp first.
func NewDecisionLog(db *sqlx.DB) (*DecisionLog, error) {
	queries, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &DecisionLog{db: db, queries: queries, now: time.Now}, nil
}

// Record stores every result of outcome under evaluationID.
func (l *DecisionLog) Record(ctx context.Context, evaluationID types.EvaluationID, outcome *rules.Outcome) error {
	if outcome == nil || len(outcome.Results) == 0 {
		return nil
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision log transaction: %w", err)
	}
	defer tx.Rollback()

	recordedAt := l.now().UTC()
	for i, res := range outcome.Results {
		params, err := json.Marshal(res.ActionParams)
		if err != nil {
			return fmt.Errorf("encode params of action %q: %w", res.ActionName, err)
		}

		var result, errText sql.NullString
		if res.Status == rules.StatusSuccess {
			encoded, err := json.Marshal(res.Result)
			if err != nil {
				return fmt.Errorf("encode result of action %q: %w", res.ActionName, err)
			}
			result = sql.NullString{String: string(encoded), Valid: true}
		}
		if res.Err != nil {
			errText = sql.NullString{String: res.Err.Error(), Valid: true}
		}

		_, err = l.queries.ExecTx(ctx, tx, "insert-action-result",
			string(evaluationID), string(outcome.RuleID), outcome.RuleName, i, res.ActionName,
			string(params), string(res.Status), result, errText, recordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert result of action %q: %w", res.ActionName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decision log: %w", err)
	}
	return nil
}

// RecordAll stores every outcome of one evaluation.
func (l *DecisionLog) RecordAll(ctx context.Context, evaluationID types.EvaluationID, outcomes []*rules.Outcome) error {
	for _, o := range outcomes {
		if err := l.Record(ctx, evaluationID, o); err != nil {
			return err
		}
	}
	return nil
}

// ListByEvaluation returns the stored results of an evaluation in insert order.
func (l *DecisionLog) ListByEvaluation(ctx context.Context, evaluationID types.EvaluationID) ([]ActionResultRow, error) {
	var rows []ActionResultRow
	if err := l.queries.SelectContext(ctx, "list-action-results-by-evaluation", &rows, string(evaluationID)); err != nil {
		return nil, fmt.Errorf("list action results: %w", err)
	}
	return rows, nil
}

// CountByStatus summarises the stored results of one action.
func (l *DecisionLog) CountByStatus(ctx context.Context, actionName string) ([]StatusCount, error) {
	var counts []StatusCount
	if err := l.queries.SelectContext(ctx, "count-action-results-by-status", &counts, actionName); err != nil {
		return nil, fmt.Errorf("count action results: %w", err)
	}
	return counts, nil
}
