// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("DRT_PARAMS_VEHICLE_CAPACITY")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Params.VehicleCapacity != 4 {
		t.Fatalf("expected default vehicle capacity 4, got %d", cfg.Params.VehicleCapacity)
	}
	if cfg.Params.BigM < 1e12 {
		t.Fatalf("expected default big_m >= 1e12, got %v", cfg.Params.BigM)
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Params.VehicleCapacity = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for vehicle_capacity < 1")
	}
	cfg = defaultConfig()
	cfg.Params.BigM = 1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for big_m below 1e12")
	}
	cfg = defaultConfig()
	cfg.Params.BatchSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for batch_seconds <= 0")
	}
	cfg = defaultConfig()
	cfg.Observability.MetricsPort = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for invalid metrics_port")
	}
}
