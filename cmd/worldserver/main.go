package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/l1jgo/worldserver/internal/admin"
	"github.com/l1jgo/worldserver/internal/config"
	coresys "github.com/l1jgo/worldserver/internal/core/system"
	"github.com/l1jgo/worldserver/internal/data"
	"github.com/l1jgo/worldserver/internal/instance"
	"github.com/l1jgo/worldserver/internal/maps"
	"github.com/l1jgo/worldserver/internal/persist"
	"github.com/l1jgo/worldserver/internal/scripting"
	"github.com/l1jgo/worldserver/internal/system"
	"github.com/l1jgo/worldserver/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

var printer = message.NewPrinter(language.English)

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             worldserver  v0.1.0           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         grids · maps · instances          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := printer.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Environment and config. A missing .env is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfgPath := "config/server.toml"
	if p := os.Getenv("WORLDSERVER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dsn := os.Getenv("WORLDSERVER_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Static data
	printSection("data")
	yamlDir := filepath.Join(cfg.World.DataDir, "yaml")
	templates, err := data.LoadMapTable(filepath.Join(yamlDir, "map_list.yaml"))
	if err != nil {
		return fmt.Errorf("map list: %w", err)
	}
	printStat("map templates", templates.Count())
	areas, err := data.LoadAreaTable(filepath.Join(yamlDir, "area_list.yaml"))
	if err != nil {
		return fmt.Errorf("area list: %w", err)
	}
	printStat("areas", areas.Count())
	spawns, err := data.LoadSpawnTable(filepath.Join(yamlDir, "spawn_list.yaml"))
	if err != nil {
		return fmt.Errorf("spawn list: %w", err)
	}
	printStat("spawns", spawns.Count())
	scripts, err := data.LoadScriptTable(filepath.Join(yamlDir, "script_list.yaml"))
	if err != nil {
		return fmt.Errorf("script list: %w", err)
	}
	printStat("map scripts", scripts.Count())

	lua, err := scripting.NewEngine(cfg.World.ScriptsDir, cfg.World.LuaStates, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer lua.Close()
	printStat("lua states", lua.Size())
	fmt.Println()

	// 4. Persistence: Postgres when configured, memory otherwise
	printSection("database")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		respawnStore  maps.RespawnStore
		instanceStore instance.Store
	)
	if cfg.Database.DSN != "" {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		respawnStore = persist.NewRespawnRepo(db)
		instanceStore = persist.NewInstanceRepo(db)
	} else {
		log.Warn("no database configured, respawn and instance state is not durable")
		respawnStore = persist.NewMemoryRespawnStore()
		instanceStore = persist.NewMemoryInstanceStore()
	}

	instances := instance.NewManager(templates, instanceStore, log)
	if err := instances.Load(ctx); err != nil {
		return err
	}
	printStat("instance saves", instances.Count())
	fmt.Println()

	// 5. Map manager and systems
	mm := maps.NewManager(maps.NewOptions(cfg), maps.Deps{
		Templates: templates,
		Spawns:    spawns,
		Areas:     areas,
		Scripts:   scripts,
		Lua:       lua,
		Respawns:  respawnStore,
		Instances: instances,
		GUIDs:     world.NewGUIDGenerator(),
		Log:       log,
	})

	runner := coresys.NewRunner()
	runner.Register(system.NewInstanceResetSystem(mm, instances, log))
	runner.Register(system.NewMapUpdateSystem(mm, log))
	runner.Register(system.NewReclaimSystem(mm, log))
	persister := system.NewRespawnPersistSystem(mm, log, cfg.World.RespawnSaveInterval)
	runner.Register(persister)

	// 6. Admin API
	var adminSrv *http.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.NewServer(cfg.Admin, mm, log)
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server stopped", zap.Error(err))
			}
		}()
	}

	// 7. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.World.TickRate)
	defer ticker.Stop()

	printSection("ready")
	if adminSrv != nil {
		printReady(fmt.Sprintf("admin API on %s", cfg.Admin.BindAddress))
	}
	printReady(fmt.Sprintf("world loop running (tick: %s)", cfg.World.TickRate))
	fmt.Println()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			// feed the measured time so a slow tick does not slow the world
			runner.Tick(now.Sub(last))
			last = now
			if took := runner.LastTick(); took > cfg.World.TickRate {
				phase, phaseTook := runner.SlowestPhase()
				log.Warn("tick overran", zap.Duration("took", took),
					zap.Stringer("phase", phase), zap.Duration("phase_took", phaseTook))
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			return shutdown(mm, persister, adminSrv, log)
		}
	}
}

func shutdown(mm *maps.Manager, persister *system.RespawnPersistSystem, adminSrv *http.Server, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if adminSrv != nil {
		if err := adminSrv.Shutdown(ctx); err != nil {
			log.Warn("admin shutdown", zap.Error(err))
		}
	}
	persister.Flush()
	if err := mm.UnloadAll(ctx); err != nil {
		return fmt.Errorf("unload maps: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
