package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/worldserver/internal/core/system"
	"github.com/l1jgo/worldserver/internal/instance"
	"github.com/l1jgo/worldserver/internal/maps"
)

// InstanceResetSystem applies the global reset schedule: every save whose
// reset time passed is reset, loaded or not. Checked once per second.
// Phase 0 (Schedule).
type InstanceResetSystem struct {
	maps      *maps.Manager
	instances *instance.Manager
	log       *zap.Logger
	elapsed   time.Duration

	// Now is the clock; replaced in tests.
	Now func() time.Time
}

const resetCheckInterval = time.Second

func NewInstanceResetSystem(mm *maps.Manager, im *instance.Manager, log *zap.Logger) *InstanceResetSystem {
	return &InstanceResetSystem{
		maps:      mm,
		instances: im,
		log:       log,
		elapsed:   resetCheckInterval, // check on the first tick
		Now:       time.Now,
	}
}

func (s *InstanceResetSystem) Phase() coresys.Phase { return coresys.PhaseSchedule }

func (s *InstanceResetSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < resetCheckInterval {
		return
	}
	s.elapsed = 0

	due := s.instances.DueResets(s.Now())
	if len(due) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, save := range due {
		if !s.maps.ResetInstance(ctx, save.MapID, save.InstanceID, maps.ResetGlobal) {
			s.log.Warn("global reset deferred",
				zap.Uint32("map", save.MapID), zap.Uint32("instance", save.InstanceID))
		}
	}
}
