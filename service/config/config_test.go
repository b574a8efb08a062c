package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/airbusgeo/stac-fetcher/planner"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*cfg, Default()) {
		t.Errorf("expected the defaults, got %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetcher.yaml")
	content := `
planner:
  reject_km2: 500
  limit_steps:
    - max_km2: 100
      value: 1
    - max_km2: 500
      value: 4
dispatcher:
  workers: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FETCHER_PLANNER_DEFAULT_DAYS", "30")
	t.Setenv("FETCHER_DISPATCHER_QUADKEY_ZOOM", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.RejectKm2 != 500 || cfg.Planner.WarnKm2 != 100 || cfg.Planner.DefaultDays != 30 {
		t.Errorf("unexpected policy %+v", cfg.Planner)
	}
	if !reflect.DeepEqual(cfg.Planner.LimitSteps, []planner.Step{{MaxKm2: 100, Value: 1}, {MaxKm2: 500, Value: 4}}) {
		t.Errorf("unexpected limit steps %v", cfg.Planner.LimitSteps)
	}
	if !reflect.DeepEqual(cfg.Planner.ScaleSteps, planner.DefaultPolicy().ScaleSteps) {
		t.Errorf("scale steps must keep their defaults: %v", cfg.Planner.ScaleSteps)
	}
	if cfg.Dispatcher.Workers != 4 || cfg.Dispatcher.QuadkeyZoom != 8 {
		t.Errorf("unexpected dispatcher config %+v", cfg.Dispatcher)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fetcher.yaml")
	if err := os.WriteFile(path, []byte("dispatcher:\n  workers: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("expected an error for zero workers")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}
