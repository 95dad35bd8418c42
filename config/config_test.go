package config

import (
	"errors"
	"testing"

	"github.com/pthm-cable/mmc/merr"
)

func TestLoadDefaultsValidates(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error loading defaults: %v", err)
	}
	if cfg.Time.Gates <= 0 {
		t.Fatalf("expected positive derived gate count, got %d", cfg.Time.Gates)
	}
}

func TestValidateRejectsZeroPhotons(t *testing.T) {
	cfg, _ := Load("")
	cfg.Nphoton = 0
	err := cfg.Validate()
	if err == nil || !errors.Is(err, merr.ConfigKind) {
		t.Fatalf("expected ConfigKind error, got %v", err)
	}
}

func TestValidateRejectsNonUnitDirection(t *testing.T) {
	cfg, _ := Load("")
	cfg.Source.Dir = Vec3{X: 1, Y: 1, Z: 0}
	err := cfg.Validate()
	if err == nil || !errors.Is(err, merr.ConfigKind) {
		t.Fatalf("expected ConfigKind error for non-unit direction, got %v", err)
	}
}

func TestValidateRejectsUnknownMethod(t *testing.T) {
	cfg, _ := Load("")
	cfg.Method = "nonsense"
	err := cfg.Validate()
	if err == nil || !errors.Is(err, merr.ConfigKind) {
		t.Fatalf("expected ConfigKind error for unknown method, got %v", err)
	}
}

func TestValidateRejectsEmptySourceElems(t *testing.T) {
	cfg, _ := Load("")
	cfg.Source.Elems = nil
	err := cfg.Validate()
	if err == nil || !errors.Is(err, merr.ConfigKind) {
		t.Fatalf("expected ConfigKind error for empty source element list, got %v", err)
	}
}
