// Package config loads service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game/rules"
	"github.com/projectcards/project-game-server/internal/storage"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PGS_STORAGE_DRIVER.
const EnvPrefix = "PGS"

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Storage StorageConfig `mapstructure:"storage"`
	Replay  ReplayConfig  `mapstructure:"replay"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	// ShutdownTimeout bounds graceful shutdown of both listeners.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type HTTPConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

type WebSocketConfig struct {
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type GameConfig struct {
	DefinitionPath string `mapstructure:"definition_path"`
	// DrawScope overrides the document setting when non-empty.
	DrawScope string `mapstructure:"draw_scope"`
	// Seed fixes the draw source; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type ReplayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.http.read_timeout", 10*time.Second)
	v.SetDefault("server.http.write_timeout", 10*time.Second)
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.websocket.write_timeout", 5*time.Second)
	v.SetDefault("server.websocket.ping_interval", 30*time.Second)
	v.SetDefault("server.websocket.max_message_size", 4096)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("game.definition_path", "config/game.json")
	v.SetDefault("game.draw_scope", "")
	v.SetDefault("game.seed", 0)

	v.SetDefault("storage.driver", storage.DriverMemory)
	v.SetDefault("storage.path", "data")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.dir", "data/replays")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads path, applies PGS_ environment overrides and validates the
// result. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown drivers, scopes and levels.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.HTTP.Address == "" {
		problems = append(problems, "server.http.address is required")
	}
	if c.Server.GRPC.Address == "" {
		problems = append(problems, "server.grpc.address is required")
	}
	if c.Game.DefinitionPath == "" {
		problems = append(problems, "game.definition_path is required")
	}
	if _, err := rules.ParseDrawScope(c.Game.DrawScope); err != nil {
		problems = append(problems, fmt.Sprintf("game.draw_scope: %v", err))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case storage.DriverMemory:
	case storage.DriverFile, storage.DriverSQLite:
		if c.Storage.Path == "" {
			problems = append(problems, fmt.Sprintf("storage.path is required for driver %q", c.Storage.Driver))
		}
	case storage.DriverPostgres:
		if c.Storage.DSN == "" {
			problems = append(problems, "storage.dsn is required for driver \"postgres\"")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not one of %s",
			c.Storage.Driver, strings.Join(storage.Drivers, ", ")))
	}

	if c.Replay.Enabled && c.Replay.Dir == "" {
		problems = append(problems, "replay.dir is required when replay is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of json, console", c.Logging.Format))
	}

	if len(problems) > 0 {
		return apperrors.WithDetails(apperrors.CodeInvalidConfiguration,
			"invalid configuration: "+strings.Join(problems, "; "), problems)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
