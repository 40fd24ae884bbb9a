// Package storage keeps day plan snapshots as JSON files, one per owner and
// date, for backups and offline use.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"meal-plan-assistant/internal/planner"
)

// PlanArchive provides file-based storage for day plans. Only the latest
// version of each plan is kept on disk.
type PlanArchive struct {
	basePath string
}

// NewPlanArchive creates a PlanArchive and ensures the base directory exists.
func NewPlanArchive(basePath string) (*PlanArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &PlanArchive{basePath: basePath}, nil
}

// sanitize makes an owner id safe for filenames.
func sanitize(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-", ":", "-", "_", "-").Replace(s)
}

func (s *PlanArchive) prefix(owner, date string) string {
	return fmt.Sprintf("%s_%s_v", sanitize(owner), date)
}

// getVersionedPath returns the full path for a given plan version.
func (s *PlanArchive) getVersionedPath(owner, date string, version int64) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s%d.json", s.prefix(owner, date), version))
}

// Save writes the plan, replacing any older version.
func (s *PlanArchive) Save(plan planner.DayPlan) error {
	if err := planner.ValidateDate(plan.Date); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := s.RemoveStaleVersions(plan.Owner, plan.Date); err != nil {
		return err
	}
	filePath := s.getVersionedPath(plan.Owner, plan.Date, plan.Version)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}

// Exists checks whether a specific version of a plan is on disk.
func (s *PlanArchive) Exists(owner, date string, version int64) bool {
	_, err := os.Stat(s.getVersionedPath(owner, date, version))
	return !os.IsNotExist(err)
}

// Load returns the stored plan for owner and date, or a new empty plan when none exists.
func (s *PlanArchive) Load(ctx context.Context, owner, date string) (planner.DayPlan, error) {
	matches, err := s.versions(owner, date)
	if err != nil {
		return planner.DayPlan{}, err
	}
	if len(matches) == 0 {
		return planner.NewDayPlan(owner, date), nil
	}

	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan planner.DayPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return planner.DayPlan{}, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return plan, nil
}

// Commit stores the snapshot as the next version.
func (s *PlanArchive) Commit(ctx context.Context, plan planner.DayPlan) (planner.CommitResult, error) {
	if plan.PlanID == "" {
		plan.PlanID = planner.NewPlanID()
	}
	stored := plan.Clone()
	stored.Version = plan.Version + 1
	if err := s.Save(stored); err != nil {
		return planner.CommitResult{Success: false, Data: plan}, err
	}
	return planner.CommitResult{Success: true, Data: stored}, nil
}

// RemoveStaleVersions removes all files associated with a plan.
func (s *PlanArchive) RemoveStaleVersions(owner, date string) error {
	matches, err := s.versions(owner, date)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			return fmt.Errorf("failed to remove stale file %s: %w", match, err)
		}
	}
	return nil
}

// versions lists the files of a plan, oldest first.
func (s *PlanArchive) versions(owner, date string) ([]string, error) {
	pattern := filepath.Join(s.basePath, s.prefix(owner, date)+"*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob plan files: %w", err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return versionOf(matches[i]) < versionOf(matches[j])
	})
	return matches, nil
}

func versionOf(path string) int64 {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	i := strings.LastIndex(base, "_v")
	if i < 0 {
		return 0
	}
	var v int64
	fmt.Sscanf(base[i+2:], "%d", &v)
	return v
}
