package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/engine"
	"github.com/Vortex-technology1/talko-task-manager/internal/models"

	"github.com/sirupsen/logrus"
)

// Processes repairs processes stuck between steps.
type Processes interface {
	ActivateStep(ctx context.Context, companyID, processID string) (engine.Replay, error)
}

// stalledProcesses replays every active process. A completion whose status
// change was never handled gets advanced, a missing step task gets created
// and healthy processes are left alone.
func (s *Sweeper) stalledProcesses(ctx context.Context, c models.Company, _ time.Time, st *Stats) error {
	if s.processes == nil {
		return nil
	}
	active, err := s.store.ListProcesses(ctx, c.ID, models.ProcessActive)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	for _, p := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.Checked++
		rp, err := s.processes.ActivateStep(ctx, c.ID, p.ID)
		if err != nil {
			s.log.WithFields(logrus.Fields{"sweep": KindStalledProcesses, "company": c.ID, "process": p.ID}).
				WithError(err).Warn("sweep: replay process")
			continue
		}
		if rp.Advanced || rp.Created {
			st.Activated++
		}
	}
	return nil
}
