package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitConfiguresGlobalLogger(t *testing.T) {
	t.Cleanup(func() {
		SetLogger(nil)
	})

	if err := Init("debug"); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	logger := Logger()
	if logger == nil {
		t.Fatal("expected Logger to return non-nil logger")
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected logger to enable debug level")
	}
}

func TestInitFallsBackToInfoOnUnknownLevel(t *testing.T) {
	t.Cleanup(func() {
		SetLogger(nil)
	})

	if err := InitWithOptions(Options{Level: "chatty", Encoding: "console"}); err != nil {
		t.Fatalf("InitWithOptions returned error: %v", err)
	}

	core := Logger().Core()
	if core.Enabled(zap.DebugLevel) {
		t.Fatal("expected debug level to be disabled")
	}
	if !core.Enabled(zap.InfoLevel) {
		t.Fatal("expected info level to be enabled")
	}
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() {
		SetLogger(nil)
	})
	SetLogger(zap.New(core))

	WithModule("reminders").Info("scan finished")
	Warn("push channel unavailable")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if module := entries[0].ContextMap()["module"]; module != "reminders" {
		t.Fatalf("expected module field to be \"reminders\", got %v", module)
	}
	if entries[1].Message != "push channel unavailable" {
		t.Fatalf("unexpected message %q", entries[1].Message)
	}
}
