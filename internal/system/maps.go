package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/worldserver/internal/core/system"
	"github.com/l1jgo/worldserver/internal/maps"
)

// MapUpdateSystem ticks every running map. Maps update in parallel on the
// manager's worker limit; the phase returns once all of them finished.
// Phase 1 (Maps).
type MapUpdateSystem struct {
	maps *maps.Manager
	log  *zap.Logger
}

func NewMapUpdateSystem(mm *maps.Manager, log *zap.Logger) *MapUpdateSystem {
	return &MapUpdateSystem{maps: mm, log: log}
}

func (s *MapUpdateSystem) Phase() coresys.Phase { return coresys.PhaseMaps }

func (s *MapUpdateSystem) Update(dt time.Duration) {
	if err := s.maps.UpdateMaps(context.Background(), dt); err != nil {
		s.log.Error("map update failed", zap.Error(err))
	}
}

// ReclaimSystem destroys maps that finished: empty instances past their
// unload delay, ended battlegrounds and reset instances. Phase 2 (Reclaim).
type ReclaimSystem struct {
	maps *maps.Manager
	log  *zap.Logger
}

func NewReclaimSystem(mm *maps.Manager, log *zap.Logger) *ReclaimSystem {
	return &ReclaimSystem{maps: mm, log: log}
}

func (s *ReclaimSystem) Phase() coresys.Phase { return coresys.PhaseReclaim }

func (s *ReclaimSystem) Update(_ time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	before := s.maps.Count()
	if err := s.maps.Reclaim(ctx); err != nil {
		s.log.Error("map reclaim failed", zap.Error(err))
	}
	if n := before - s.maps.Count(); n > 0 {
		s.log.Debug("maps reclaimed", zap.Int("count", n))
	}
}
