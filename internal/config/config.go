package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	World      WorldConfig      `toml:"world"`
	Visibility VisibilityConfig `toml:"visibility"`
	Admin      AdminConfig      `toml:"admin"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	ID        int    `toml:"id"`
	StartTime int64  // set at boot, not from config
}

// DatabaseConfig configures Postgres. An empty DSN keeps respawn and
// instance state in memory only.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type WorldConfig struct {
	DataDir    string        `toml:"data_dir"`
	ScriptsDir string        `toml:"scripts_dir"`
	TickRate   time.Duration `toml:"tick_rate"`
	// GridUnload disables grid unloading entirely when false.
	GridUnload          bool          `toml:"grid_unload"`
	GridCleanUpDelay    time.Duration `toml:"grid_clean_up_delay"`
	MapUpdateThreads    int           `toml:"map_update_threads"`
	InstanceUnloadDelay time.Duration `toml:"instance_unload_delay"`
	// StrictIntegrity turns grid integrity violations into panics.
	StrictIntegrity      bool          `toml:"strict_integrity"`
	DynamicTreeRebalance time.Duration `toml:"dynamic_tree_rebalance"`
	RespawnSaveInterval  time.Duration `toml:"respawn_save_interval"`
	LuaStates            int           `toml:"lua_states"`
}

// VisibilityConfig holds the default visible distance per map type, in yards.
type VisibilityConfig struct {
	Continents    float32 `toml:"continents"`
	Instances     float32 `toml:"instances"`
	Battlegrounds float32 `toml:"battlegrounds"`
	Arenas        float32 `toml:"arenas"`
}

type AdminConfig struct {
	Enabled        bool     `toml:"enabled"`
	BindAddress    string   `toml:"bind_address"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// FeedInterval is how often the websocket feed pushes map snapshots.
	FeedInterval time.Duration `toml:"feed_interval"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.World.TickRate <= 0 {
		return fmt.Errorf("world.tick_rate must be positive")
	}
	if c.World.MapUpdateThreads < 1 {
		return fmt.Errorf("world.map_update_threads must be at least 1")
	}
	if c.World.GridCleanUpDelay < time.Second {
		return fmt.Errorf("world.grid_clean_up_delay must be at least 1s")
	}
	return nil
}

// Defaults returns the configuration used for keys missing from the file.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "worldserver",
			ID:   1,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		World: WorldConfig{
			DataDir:              "data",
			ScriptsDir:           "scripts",
			TickRate:             100 * time.Millisecond,
			GridUnload:           true,
			GridCleanUpDelay:     5 * time.Minute,
			MapUpdateThreads:     4,
			InstanceUnloadDelay:  30 * time.Minute,
			DynamicTreeRebalance: 60 * time.Second,
			RespawnSaveInterval:  10 * time.Second,
			LuaStates:            4,
		},
		Visibility: VisibilityConfig{
			Continents:    90,
			Instances:     120,
			Battlegrounds: 180,
			Arenas:        180,
		},
		Admin: AdminConfig{
			Enabled:        true,
			BindAddress:    "127.0.0.1:8085",
			AllowedOrigins: []string{"http://localhost:3000"},
			FeedInterval:   time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
