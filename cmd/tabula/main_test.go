package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	serveradapter "github.com/hylla/tabula/internal/adapters/server"
	"github.com/hylla/tabula/internal/adapters/storage/sqlite"
	"github.com/hylla/tabula/internal/app"
	"github.com/hylla/tabula/internal/config"
	"github.com/hylla/tabula/internal/tui"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("TABULA_DEV_MODE", "false")
	os.Exit(m.Run())
}

type fakeProgram struct {
	runErr error
}

func (f fakeProgram) Run() (tea.Model, error) {
	return nil, f.runErr
}

// scriptedProgram feeds messages to the model instead of a terminal.
type scriptedProgram struct {
	model tea.Model
	msgs  []tea.Msg
}

func (p scriptedProgram) Run() (tea.Model, error) {
	out := p.model
	for _, msg := range p.msgs {
		out, _ = out.Update(msg)
	}
	return out, nil
}

func typeKeys(text string) []tea.Msg {
	msgs := make([]tea.Msg, 0, len(text))
	for _, r := range text {
		msgs = append(msgs, tea.KeyPressMsg{Code: r, Text: string(r)})
	}
	return msgs
}

// addRecordScript adds one task titled title to the first lane.
func addRecordScript(title string) []tea.Msg {
	msgs := []tea.Msg{tea.WindowSizeMsg{Width: 140, Height: 30}, tea.KeyPressMsg{Code: 'n', Text: "n"}}
	msgs = append(msgs, typeKeys(title)...)
	return append(msgs, tea.KeyPressMsg{Code: tea.KeyEnter})
}

func stubProgram(t *testing.T, msgs ...tea.Msg) *tea.Model {
	t.Helper()
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	var seen tea.Model
	programFactory = func(m tea.Model) program {
		seen = m
		return scriptedProgram{model: m, msgs: msgs}
	}
	return &seen
}

func tempRun(t *testing.T) (dbPath, cfgPath string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "tabula.db"), filepath.Join(dir, "config.toml")
}

func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestRunStartsProgram(t *testing.T) {
	seen := stubProgram(t)
	dbPath, cfgPath := tempRun(t)
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, ok := (*seen).(tui.Model); !ok {
		t.Fatalf("expected tui.Model handed to the program, got %T", *seen)
	}
}

func TestRunTUIProgramError(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	programFactory = func(tea.Model) program { return fakeProgram{runErr: io.ErrClosedPipe} }

	dbPath, cfgPath := tempRun(t)
	err := run(context.Background(), []string{"tui", "--db", dbPath, "--config", cfgPath}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "run tui program") {
		t.Fatalf("expected wrapped program error, got %v", err)
	}
}

func TestRunTUIPersistsEdits(t *testing.T) {
	stubProgram(t, addRecordScript("Ship it")...)
	dbPath, cfgPath := tempRun(t)
	args := []string{"--db", dbPath, "--config", cfgPath, "--scope", "room/launch"}
	if err := run(context.Background(), args, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	repo, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	defer func() { _ = repo.Close() }()
	snap, err := repo.Load(context.Background(), "room/launch")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Lanes) != 3 || len(snap.Columns) != 3 {
		t.Fatalf("expected configured seed lanes and columns, got %d lanes %d columns", len(snap.Lanes), len(snap.Columns))
	}
	if len(snap.Records) != 1 || snap.Records[0].Title != "Ship it" || snap.Records[0].LaneID != snap.Lanes[0].ID {
		t.Fatalf("expected one record in the first lane, got %#v", snap.Records)
	}
}

func TestRunUsesConfiguredKeysAndSeed(t *testing.T) {
	dbPath, cfgPath := tempRun(t)
	content := `
[grid]
default_scope = "team/board"

[[grid.lanes]]
title = "Inbox"

[keys]
add_record = "a"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	msgs := []tea.Msg{tea.WindowSizeMsg{Width: 140, Height: 30}, tea.KeyPressMsg{Code: 'a', Text: "a"}}
	msgs = append(msgs, typeKeys("Triage")...)
	msgs = append(msgs, tea.KeyPressMsg{Code: tea.KeyEnter})
	stubProgram(t, msgs...)

	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var out strings.Builder
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "lanes"}, &out, io.Discard); err != nil {
		t.Fatalf("run(lanes) error = %v", err)
	}
	table := out.String()
	if !strings.Contains(table, "team/board") || !strings.Contains(table, "Inbox") {
		t.Fatalf("expected default scope table with seeded lane, got %q", table)
	}
	if strings.Contains(table, "To Do") {
		t.Fatalf("expected configured lanes to replace defaults, got %q", table)
	}
}

func TestRunInvalidFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--definitely-not-a-flag"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected flag parse error")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"nope"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestRunRejectsInvalidScope(t *testing.T) {
	dbPath, cfgPath := tempRun(t)
	err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "--scope", "room//x", "lanes"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "resolve scope") {
		t.Fatalf("expected scope error, got %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dbPath, cfgPath := tempRun(t)
	if err := os.WriteFile(cfgPath, []byte("[storage]\nbackend = \"mongo\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "scopes"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config load error, got %v", err)
	}
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	dbPath, cfgPath := tempRun(t)
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"verbose\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "scopes"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected invalid logging level error, got %v", err)
	}
}

func TestRunExportImportRoundTrip(t *testing.T) {
	stubProgram(t, addRecordScript("Carry over")...)
	dbPath, cfgPath := tempRun(t)
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "--scope", "room/a"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(tui) error = %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "out", "export.json")
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "export", "--out", exportPath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	content, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var exported app.Export
	if err := json.Unmarshal(content, &exported); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if exported.Version != app.ExportVersion || len(exported.Grids) != 1 || exported.Grids[0].ScopeKey != "room/a" {
		t.Fatalf("unexpected export %#v", exported)
	}

	otherDB := filepath.Join(t.TempDir(), "other.db")
	if err := run(context.Background(), []string{"--db", otherDB, "--config", cfgPath, "import", "--in", exportPath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(import) error = %v", err)
	}
	var scopes strings.Builder
	if err := run(context.Background(), []string{"--db", otherDB, "--config", cfgPath, "scopes"}, &scopes, io.Discard); err != nil {
		t.Fatalf("run(scopes) error = %v", err)
	}
	if strings.TrimSpace(scopes.String()) != "room/a" {
		t.Fatalf("expected imported scope, got %q", scopes.String())
	}
	var lanes strings.Builder
	if err := run(context.Background(), []string{"--db", otherDB, "--config", cfgPath, "--scope", "room/a", "lanes"}, &lanes, io.Discard); err != nil {
		t.Fatalf("run(lanes) error = %v", err)
	}
	if !strings.Contains(lanes.String(), "To Do") || !strings.Contains(lanes.String(), "1") {
		t.Fatalf("expected imported counts, got %q", lanes.String())
	}
}

func TestRunExportToStdoutAndImportErrors(t *testing.T) {
	dbPath, cfgPath := tempRun(t)
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "export"}, &out, io.Discard); err != nil {
		t.Fatalf("run(export stdout) error = %v", err)
	}
	if !strings.Contains(out.String(), app.ExportVersion) {
		t.Fatalf("expected export json on stdout, got %q", out.String())
	}

	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "import"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected missing --in error")
	}
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "import", "--in", bad}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "decode snapshot json") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestRunServeUsesConfigAndFlags(t *testing.T) {
	origRunner := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = origRunner })
	var (
		gotCfg  serveradapter.Config
		gotDeps serveradapter.Dependencies
	)
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
		gotCfg = cfg
		gotDeps = deps
		return nil
	}

	dbPath, cfgPath := tempRun(t)
	args := []string{"--db", dbPath, "--config", cfgPath, "serve", "--http", "127.0.0.1:9999"}
	if err := run(context.Background(), args, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.APIEndpoint != "/api/v1" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotCfg.ServerVersion != version || len(gotCfg.AllowedOrigins) == 0 {
		t.Fatalf("expected version and default origins, got %#v", gotCfg)
	}
	if gotDeps.Grids == nil || gotDeps.Logger == nil {
		t.Fatalf("expected grid service and logger dependencies, got %#v", gotDeps)
	}
}

func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	stubProgram(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "env.db")
	cfgPath := filepath.Join(dir, "env.toml")
	t.Setenv("TABULA_DB_PATH", dbPath)
	t.Setenv("TABULA_CONFIG", cfgPath)

	if err := run(context.Background(), nil, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db from TABULA_DB_PATH, stat error %v", err)
	}
}

func TestRunPathsCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "cfg"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))

	var out strings.Builder
	if err := run(context.Background(), []string{"--app", "tabula-test", "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	for _, want := range []string{"app: tabula-test", "dev_mode: false", "config:", "env:", "data_dir:", "db:"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in paths output, got %q", want, out.String())
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TABULA_TEST_BOOL", "true")
	if v, ok := parseBoolEnv("TABULA_TEST_BOOL"); !ok || !v {
		t.Fatalf("expected true/ok, got %t/%t", v, ok)
	}
	t.Setenv("TABULA_TEST_BOOL", "maybe")
	if _, ok := parseBoolEnv("TABULA_TEST_BOOL"); ok {
		t.Fatal("expected malformed value to be ignored")
	}
	t.Setenv("TABULA_TEST_BOOL", "")
	if _, ok := parseBoolEnv("TABULA_TEST_BOOL"); ok {
		t.Fatal("expected unset value to be ignored")
	}
}

func TestRunDevModeWritesLogsToWorkspaceFileOnly(t *testing.T) {
	stubProgram(t)
	workspace := t.TempDir()
	t.Chdir(workspace)

	dbPath := filepath.Join(workspace, "tabula.db")
	cfgPath := filepath.Join(workspace, "config.toml")
	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"--dev", "--db", dbPath, "--config", cfgPath}, io.Discard, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if strings.Contains(stderr.String(), "command flow start") {
		t.Fatalf("expected tui mode to keep the console quiet, got %q", stderr.String())
	}

	logDir := filepath.Join(workspace, ".tabula", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".log") {
		t.Fatalf("expected one dev log file in %s, got %v", logDir, entries)
	}
	content, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, want := range []string{"command flow start", "sqlite repository ready", "command flow complete"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %q in dev log, got %q", want, string(content))
		}
	}
}

func TestRunNonTUICommandsLogToConsole(t *testing.T) {
	dbPath, cfgPath := tempRun(t)
	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "scopes"}, io.Discard, &stderr); err != nil {
		t.Fatalf("run(scopes) error = %v", err)
	}
	if !strings.Contains(stderr.String(), "command flow complete") {
		t.Fatalf("expected console runtime logs, got %q", stderr.String())
	}
}

func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "tabula")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); filepath.Clean(got) != filepath.Clean(root) {
		t.Fatalf("expected workspace root %q, got %q", root, got)
	}
}

func TestDevLogFilePathResolvesAgainstWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "tabula")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	t.Chdir(nested)

	got, err := devLogFilePath(".tabula/log", "tabula dev", time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	normalize := func(p string) string {
		return strings.TrimPrefix(filepath.Clean(p), "/private")
	}
	want := filepath.Join(root, ".tabula", "log", "tabula-dev-20260222.log")
	if normalize(got) != normalize(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"tabula":      "tabula",
		" a/b:c ":     "a-b-c",
		"///":         "tabula",
		"":            "tabula",
		"tabula dev ": "tabula-dev",
	}
	for input, want := range cases {
		if got := sanitizeLogFileStem(input); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/tabula.db").Logging

	logger, err := newRuntimeLogger(&console, "tabula", false, cfg, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.SetConsoleEnabled(false)
	logger.Info("during")
	logger.Component().Info("component during")
	logger.SetConsoleEnabled(true)
	logger.Info("after")

	out := console.String()
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include before and after, got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit muted events, got %q", out)
	}
}
