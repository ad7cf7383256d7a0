// Package balancer picks the least-loaded member of a function for new work.
package balancer

import (
	"context"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"
)

// TaskLister is the slice of the store the balancer reads from.
type TaskLister interface {
	ListTasks(ctx context.Context, companyID string, f store.TaskFilter) ([]models.Task, error)
}

type Balancer struct {
	tasks TaskLister
	loc   *time.Location
	now   func() time.Time
}

func New(tasks TaskLister, loc *time.Location, now func() time.Time) *Balancer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Balancer{tasks: tasks, loc: loc, now: now}
}

// Pick returns the member of fn with the lowest open workload. It returns ""
// when fn has no members. A single member is returned without reading load.
func (b *Balancer) Pick(ctx context.Context, companyID string, fn models.Function) (string, error) {
	switch len(fn.AssigneeIDs) {
	case 0:
		return "", nil
	case 1:
		return fn.AssigneeIDs[0], nil
	}

	open, err := b.tasks.ListTasks(ctx, companyID, store.TaskFilter{
		Function: fn.Name,
		Statuses: store.OpenStatuses,
	})
	if err != nil {
		return "", fmt.Errorf("balancer: load for %q: %w", fn.Name, err)
	}

	today := b.now().In(b.loc).Format(models.DateLayout)
	return LeastLoaded(fn.AssigneeIDs, Scores(open, fn.AssigneeIDs, today)), nil
}

// Scores counts open tasks per candidate; a task due before today counts 2.
// Tasks assigned to anyone outside ids are ignored.
func Scores(open []models.Task, ids []string, today string) map[string]int {
	scores := make(map[string]int, len(ids))
	for _, id := range ids {
		scores[id] = 0
	}
	for _, t := range open {
		if _, ok := scores[t.AssigneeID]; !ok {
			continue
		}
		scores[t.AssigneeID]++
		if t.DeadlineDate != "" && t.DeadlineDate < today {
			scores[t.AssigneeID]++
		}
	}
	return scores
}

// LeastLoaded returns the lowest-scored id; ties go to the earliest in ids.
func LeastLoaded(ids []string, scores map[string]int) string {
	best := ""
	bestScore := 0
	for i, id := range ids {
		s := scores[id]
		if i == 0 || s < bestScore {
			best, bestScore = id, s
		}
	}
	return best
}

// Assign applies the function assignment rule: with smart set and more than
// one member the least-loaded member wins; otherwise the head, then the
// first member. It returns "" for a function without members.
func (b *Balancer) Assign(ctx context.Context, companyID string, fn models.Function, smart bool) (string, error) {
	if smart && len(fn.AssigneeIDs) > 1 {
		return b.Pick(ctx, companyID, fn)
	}
	if fn.HeadID != "" {
		return fn.HeadID, nil
	}
	if len(fn.AssigneeIDs) > 0 {
		return fn.AssigneeIDs[0], nil
	}
	return "", nil
}
