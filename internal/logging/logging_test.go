package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tangzhangming/reactor/internal/config"
)

func TestNewLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "chatty"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSetAndL(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	defer Set(nil)

	L().Debug("compiled", zap.String("routine", "max"))
	if logs.Len() != 1 {
		t.Fatalf("got %d entries, want 1", logs.Len())
	}
	e := logs.All()[0]
	if e.Message != "compiled" || e.ContextMap()["routine"] != "max" {
		t.Errorf("unexpected entry %+v", e)
	}
}
