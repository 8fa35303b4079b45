package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lsmc.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s := cfg.Simulation
	if s.R != 0.06 || s.K != 1.0 || s.Steps != 12 || s.Paths != 10000 || s.Repetitions != 100 || s.Seed != 42 {
		t.Fatalf("unexpected simulation defaults: %+v", s)
	}
	if s.Dt != 1.0/12 {
		t.Fatalf("dt default: got=%v", s.Dt)
	}
	if cfg.Logger.Output != "stderr" {
		t.Fatalf("logger output default: %q", cfg.Logger.Output)
	}
	if cfg.Redis.Enabled || cfg.Database.Enabled || cfg.Kafka.Enabled {
		t.Fatalf("infrastructure should be disabled by default")
	}
	want := RequestLimitConfig{MaxPaths: 100000, MaxSteps: 1000, MaxRepetitions: 1000, MaxWorkers: 16}
	if cfg.HTTP.Limits != want {
		t.Fatalf("request limit defaults: got=%+v want=%+v", cfg.HTTP.Limits, want)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
service_name = "lsmc-test"

[simulation]
paths = 500
repetitions = 7
sigma = 0.3
workers = 4

[logger]
level = "debug"
format = "text"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "lsmc-test" {
		t.Fatalf("service name: %q", cfg.ServiceName)
	}
	if cfg.Simulation.Paths != 500 || cfg.Simulation.Repetitions != 7 || cfg.Simulation.Sigma != 0.3 || cfg.Simulation.Workers != 4 {
		t.Fatalf("file values not applied: %+v", cfg.Simulation)
	}
	if cfg.Simulation.Steps != 12 {
		t.Fatalf("unset keys should keep defaults: steps=%d", cfg.Simulation.Steps)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Format != "text" {
		t.Fatalf("logger section not applied: %+v", cfg.Logger)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "[simulation]\npaths = 500\n")
	t.Setenv("APP_SIMULATION_PATHS", "2500")
	t.Setenv("APP_SIMULATION_SEED", "7")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.Paths != 2500 || cfg.Simulation.Seed != 7 {
		t.Fatalf("env override failed: %+v", cfg.Simulation)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_SIMULATION_REPETITIONS=3\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("APP_SIMULATION_REPETITIONS") })
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.Repetitions != 3 {
		t.Fatalf(".env override failed: repetitions=%d", cfg.Simulation.Repetitions)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"no service", func(c *Config) { c.ServiceName = "" }, "service_name"},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "HTTP port"},
		{"negative request limit", func(c *Config) { c.HTTP.Limits.MaxPaths = -1 }, "request limits"},
		{"db without dsn", func(c *Config) { c.Database.Enabled = true }, "DSN"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka"},
		{"redis without host", func(c *Config) { c.Redis.Enabled = true; c.Redis.Host = "" }, "redis"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{ServiceName: "lsmc", HTTP: HTTPConfig{Port: 8080}, Redis: RedisConfig{Host: "localhost"}}
			tc.mut(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
