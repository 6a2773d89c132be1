package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hylla/tabula/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/tabula.db")
	if cfg.Database.Path != "/tmp/tabula.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Storage.Backend != StorageSQLite {
		t.Fatalf("unexpected storage backend %q", cfg.Storage.Backend)
	}
	if len(cfg.Grid.Lanes) != 3 || len(cfg.Grid.Columns) != 3 {
		t.Fatalf("expected 3 default lanes and columns, got %#v", cfg.Grid)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging defaults %#v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/tabula.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/custom/tabula.db"

[storage]
backend = "redis"
redis_addr = "10.0.0.5:6379"

[grid]
default_scope = "room/launch"

[[grid.lanes]]
title = "Backlog"
color = "#c4c4c4"

[[grid.lanes]]
title = "Shipped"

[[grid.columns]]
label = "Budget"
type = "money"

[logging]
level = "debug"

[keys]
yank = "Y"
`)
	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/tabula.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Storage.Backend != StorageRedis || cfg.Storage.RedisAddr != "10.0.0.5:6379" {
		t.Fatalf("unexpected storage config %#v", cfg.Storage)
	}
	if cfg.Storage.RedisPrefix != "tabula" {
		t.Fatalf("expected default redis prefix to survive, got %q", cfg.Storage.RedisPrefix)
	}
	if len(cfg.Grid.Lanes) != 2 || cfg.Grid.Lanes[0].Title != "Backlog" {
		t.Fatalf("unexpected lanes %#v", cfg.Grid.Lanes)
	}
	if cfg.Grid.Lanes[1].Color != "" {
		t.Fatalf("expected file lanes to replace defaults, got color %q", cfg.Grid.Lanes[1].Color)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("expected default origins when the file sets none, got %#v", cfg.Server.AllowedOrigins)
	}
	if cfg.Keys.Yank != "Y" || cfg.Keys.AddRecord != "n" {
		t.Fatalf("unexpected keys %#v", cfg.Keys)
	}

	svcCfg := cfg.ServiceConfig()
	if len(svcCfg.DefaultLanes) != 2 || svcCfg.DefaultLanes[1].Title != "Shipped" {
		t.Fatalf("unexpected lane templates %#v", svcCfg.DefaultLanes)
	}
	if len(svcCfg.DefaultColumns) != 1 || svcCfg.DefaultColumns[0].Type != domain.ColumnTypeMoney {
		t.Fatalf("unexpected column templates %#v", svcCfg.DefaultColumns)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend": `
[storage]
backend = "mongo"
`,
		"redis addr": `
[storage]
backend = "redis"
redis_addr = ""
`,
		"log level": `
[logging]
level = "loud"
`,
		"column type": `
[[grid.columns]]
label = "Mood"
type = "emoji"
`,
		"scope": `
[grid]
default_scope = "room/ /x"
`,
		"endpoint": `
[server]
api_endpoint = "api"
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content), Default("/tmp/default.db")); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestValidateRequiresDatabasePathForSQLite(t *testing.T) {
	cfg := Default("  ")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing database path error")
	}
	cfg.Storage.Backend = StorageRedis
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected redis backend to ignore database path, got %v", err)
	}
}

func TestServiceConfigKeepsEmptyColumnList(t *testing.T) {
	cfg := Default("/tmp/tabula.db")
	cfg.Grid.Columns = []ColumnConfig{}
	if got := cfg.ServiceConfig().DefaultColumns; got == nil || len(got) != 0 {
		t.Fatalf("expected explicit empty column templates, got %#v", got)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
