package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PlanRepository is a database-backed store of day plans, one row per owner and date.
type PlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(d *sql.DB) *PlanRepository {
	return &PlanRepository{db: d}
}

// Load returns the stored plan for owner and date, or a new empty plan when none exists.
func (r *PlanRepository) Load(ctx context.Context, owner, date string) (DayPlan, error) {
	var data string
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT data, version FROM day_plans WHERE owner_id = ? AND plan_date = ?`,
		owner, date,
	).Scan(&data, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return NewDayPlan(owner, date), nil
		}
		return DayPlan{}, fmt.Errorf("failed to load day plan %s/%s: %w", owner, date, err)
	}

	var plan DayPlan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return DayPlan{}, fmt.Errorf("failed to unmarshal day plan %s/%s: %w", owner, date, err)
	}
	plan.Owner = owner
	plan.Date = date
	plan.Version = version
	return plan, nil
}

// Commit stores the full snapshot and bumps its version.
func (r *PlanRepository) Commit(ctx context.Context, plan DayPlan) (CommitResult, error) {
	if plan.Owner == "" {
		return CommitResult{}, fmt.Errorf("failed to commit day plan: owner is required")
	}
	if err := ValidateDate(plan.Date); err != nil {
		return CommitResult{}, fmt.Errorf("failed to commit day plan: %w", err)
	}
	if plan.PlanID == "" {
		plan.PlanID = NewPlanID()
	}

	stored := plan.Clone()
	stored.Version = plan.Version + 1
	data, err := json.Marshal(stored)
	if err != nil {
		return CommitResult{}, fmt.Errorf("failed to marshal day plan: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO day_plans (owner_id, plan_date, plan_id, data, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, plan_date) DO UPDATE SET
			data = excluded.data,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		stored.Owner, stored.Date, stored.PlanID, string(data), stored.Version, time.Now().Unix(),
	)
	if err != nil {
		return CommitResult{Success: false, Data: plan}, fmt.Errorf("failed to commit day plan %s/%s: %w", plan.Owner, plan.Date, err)
	}

	return CommitResult{Success: true, Data: stored}, nil
}

// GetByPlanID finds a stored plan by its identifier. It returns nil when not found.
func (r *PlanRepository) GetByPlanID(ctx context.Context, planID string) (*DayPlan, error) {
	var owner, date string
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_id, plan_date FROM day_plans WHERE plan_id = ?`, planID,
	).Scan(&owner, &date)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find day plan %s: %w", planID, err)
	}

	plan, err := r.Load(ctx, owner, date)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListRecentByOwner returns the N most recently updated plans for an owner.
func (r *PlanRepository) ListRecentByOwner(ctx context.Context, owner string, limit int) ([]DayPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data, version FROM day_plans WHERE owner_id = ? ORDER BY updated_at DESC, plan_date DESC LIMIT ?`,
		owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent day plans for %s: %w", owner, err)
	}
	defer rows.Close()

	var plans []DayPlan
	for rows.Next() {
		var data string
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("failed to scan day plan: %w", err)
		}
		var plan DayPlan
		if err := json.Unmarshal([]byte(data), &plan); err != nil {
			fmt.Printf("Warning: Failed to unmarshal day plan JSON for owner %s: %v\n", owner, err)
			continue
		}
		plan.Version = version
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}
