package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/tabula/internal/app"
	"github.com/hylla/tabula/internal/domain"
)

// StorageBackend names a snapshot store implementation.
type StorageBackend string

const (
	StorageSQLite StorageBackend = "sqlite"
	StorageRedis  StorageBackend = "redis"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Storage  StorageConfig  `toml:"storage"`
	Grid     GridConfig     `toml:"grid"`
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Keys     KeyConfig      `toml:"keys"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type StorageConfig struct {
	Backend     StorageBackend `toml:"backend"`
	RedisAddr   string         `toml:"redis_addr"`
	RedisPrefix string         `toml:"redis_prefix"`
}

// GridConfig seeds new scopes.
type GridConfig struct {
	DefaultScope string         `toml:"default_scope"`
	Lanes        []LaneConfig   `toml:"lanes"`
	Columns      []ColumnConfig `toml:"columns"`
}

type LaneConfig struct {
	Title string `toml:"title"`
	Color string `toml:"color"`
}

type ColumnConfig struct {
	Label string `toml:"label"`
	Type  string `toml:"type"`
}

type ServerConfig struct {
	Bind           string   `toml:"bind"`
	APIEndpoint    string   `toml:"api_endpoint"`
	MCPEndpoint    string   `toml:"mcp_endpoint"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink used in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// KeyConfig overrides single-key bindings of the terminal grid.
type KeyConfig struct {
	AddRecord    string `toml:"add_record"`
	AddChild     string `toml:"add_child"`
	AddColumn    string `toml:"add_column"`
	AddLane      string `toml:"add_lane"`
	Delete       string `toml:"delete"`
	Edit         string `toml:"edit"`
	ToggleExpand string `toml:"toggle_expand"`
	Select       string `toml:"select"`
	CollapseLane string `toml:"collapse_lane"`
	Yank         string `toml:"yank"`
	Preview      string `toml:"preview"`
}

func defaultLanes() []LaneConfig {
	return []LaneConfig{
		{Title: "To Do", Color: "#579bfc"},
		{Title: "Working on it", Color: "#fdab3d"},
		{Title: "Done", Color: "#00c875"},
	}
}

func defaultColumns() []ColumnConfig {
	return []ColumnConfig{
		{Label: "Status", Type: string(domain.ColumnTypeStatus)},
		{Label: "Priority", Type: string(domain.ColumnTypePriority)},
		{Label: "Due date", Type: string(domain.ColumnTypeDate)},
	}
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Storage: StorageConfig{
			Backend:     StorageSQLite,
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "tabula",
		},
		Grid: GridConfig{
			DefaultScope: "default/main",
			Lanes:        defaultLanes(),
			Columns:      defaultColumns(),
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".tabula/log",
			},
		},
		Keys: KeyConfig{
			AddRecord:    "n",
			AddChild:     "N",
			AddColumn:    "c",
			AddLane:      "L",
			Delete:       "d",
			Edit:         "enter",
			ToggleExpand: "space",
			Select:       "x",
			CollapseLane: "z",
			Yank:         "y",
			Preview:      "p",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	var lists listOverrides
	if err := toml.Unmarshal(content, &lists); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	lists.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// listOverrides records which lists a file sets. A list in the file replaces
// the default list rather than merging into it element by element.
type listOverrides struct {
	Grid struct {
		Lanes   *[]LaneConfig   `toml:"lanes"`
		Columns *[]ColumnConfig `toml:"columns"`
	} `toml:"grid"`
	Server struct {
		AllowedOrigins *[]string `toml:"allowed_origins"`
	} `toml:"server"`
}

func (l listOverrides) apply(cfg *Config) {
	if l.Grid.Lanes != nil {
		cfg.Grid.Lanes = *l.Grid.Lanes
	}
	if l.Grid.Columns != nil {
		cfg.Grid.Columns = *l.Grid.Columns
	}
	if l.Server.AllowedOrigins != nil {
		cfg.Server.AllowedOrigins = *l.Server.AllowedOrigins
	}
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case StorageSQLite, "":
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required")
		}
	case StorageRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %q", c.Storage.Backend)
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	if c.Grid.DefaultScope != "" {
		if _, err := app.NormalizeScopeKey(c.Grid.DefaultScope); err != nil {
			return fmt.Errorf("invalid grid.default_scope: %w", err)
		}
	}
	for idx, lane := range c.Grid.Lanes {
		if strings.TrimSpace(lane.Title) == "" {
			return fmt.Errorf("grid.lanes[%d].title is required", idx)
		}
		if _, err := domain.NewLane("lane", lane.Title, lane.Color); err != nil {
			return fmt.Errorf("grid.lanes[%d]: %w", idx, err)
		}
	}
	seenLabel := map[string]struct{}{}
	for idx, col := range c.Grid.Columns {
		label := strings.TrimSpace(col.Label)
		if label == "" {
			return fmt.Errorf("grid.columns[%d].label is required", idx)
		}
		if _, err := domain.ParseColumnType(col.Type); err != nil {
			return fmt.Errorf("grid.columns[%d].type: %w", idx, err)
		}
		key := strings.ToLower(label)
		if _, ok := seenLabel[key]; ok {
			return fmt.Errorf("grid.columns[%d].label is duplicated: %s", idx, label)
		}
		seenLabel[key] = struct{}{}
	}

	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}
	return nil
}

// ServiceConfig maps the grid section to app seed templates.
func (c Config) ServiceConfig() app.ServiceConfig {
	out := app.ServiceConfig{}
	for _, lane := range c.Grid.Lanes {
		out.DefaultLanes = append(out.DefaultLanes, app.LaneTemplate{Title: lane.Title, Color: lane.Color})
	}
	if c.Grid.Columns != nil {
		out.DefaultColumns = make([]app.ColumnTemplate, 0, len(c.Grid.Columns))
	}
	for _, col := range c.Grid.Columns {
		typ, err := domain.ParseColumnType(col.Type)
		if err != nil {
			continue
		}
		out.DefaultColumns = append(out.DefaultColumns, app.ColumnTemplate{Label: col.Label, Type: typ})
	}
	return out
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
