package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/worldserver/internal/core/system"
	"github.com/l1jgo/worldserver/internal/maps"
)

// RespawnPersistSystem periodically writes changed respawn times of every
// map. Runs after the map phase, when no map is updating. Phase 3 (Persist).
type RespawnPersistSystem struct {
	maps     *maps.Manager
	log      *zap.Logger
	interval time.Duration
	elapsed  time.Duration
}

func NewRespawnPersistSystem(mm *maps.Manager, log *zap.Logger, interval time.Duration) *RespawnPersistSystem {
	return &RespawnPersistSystem{maps: mm, log: log, interval: interval}
}

func (s *RespawnPersistSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *RespawnPersistSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	s.Flush()
}

// Flush saves immediately. Called for graceful shutdown as well.
func (s *RespawnPersistSystem) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.maps.SaveRespawns(ctx); err != nil {
		// dirty entries stay queued and are retried next interval
		s.log.Error("respawn autosave failed", zap.Error(err))
	}
}
