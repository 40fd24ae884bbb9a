package food

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Repository is a database-backed repository for foods.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// Save inserts or updates a food in the database.
func (r *Repository) Save(ctx context.Context, f Food) error {
	if err := f.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal food to JSON: %w", err)
	}

	updatedAt := time.Now()
	if f.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, f.UpdatedAt); err == nil {
			updatedAt = parsed
		} else {
			log.Printf("Warning: invalid updated_at %q for food %s, using current time", f.UpdatedAt, f.ID)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO foods (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		f.ID, string(data), updatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save food: %w", err)
	}
	return nil
}

// Get retrieves a food by its ID.
func (r *Repository) Get(ctx context.Context, id string) (*Food, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM foods WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Food not found
		}
		return nil, fmt.Errorf("failed to get food by ID: %w", err)
	}

	var f Food
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal food JSON: %w", err)
	}
	return &f, nil
}

// FindByName returns the first food whose name matches case-insensitively,
// preferring an exact match over a partial one.
func (r *Repository) FindByName(ctx context.Context, name string) (*Food, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT data FROM foods
		WHERE lower(json_extract(data, '$.name')) LIKE '%' || lower(?) || '%'
		ORDER BY lower(json_extract(data, '$.name')) = lower(?) DESC, length(json_extract(data, '$.name'))
		LIMIT 1`, name, name).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find food by name: %w", err)
	}

	var f Food
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal food JSON: %w", err)
	}
	return &f, nil
}

// GetByIDs retrieves multiple foods keyed by ID. Unknown IDs are absent.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) (map[string]Food, error) {
	out := make(map[string]Food, len(ids))
	for _, id := range ids {
		f, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out[id] = *f
		}
	}
	return out, nil
}

// List retrieves all foods, excluding the specified IDs.
func (r *Repository) List(ctx context.Context, excludeIDs []string) ([]Food, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, data FROM foods ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	defer rows.Close()

	exclude := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = struct{}{}
	}

	var foods []Food
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		var f Food
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			log.Printf("Warning: Failed to unmarshal food JSON for ID %s: %v", id, err)
			continue
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate foods: %w", err)
	}
	return foods, nil
}

// Count returns the number of foods in the database.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count foods: %w", err)
	}
	return n, nil
}
