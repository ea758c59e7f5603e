package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cookbooks/internal/config"
	"cookbooks/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataBackend:     "sqlite",
		DataDir:         t.TempDir(),
		SQLiteDBPath:    filepath.Join(t.TempDir(), "cookbooks.db"),
		LogLevel:        "error",
		LogFormat:       "text",
		ShutdownTimeout: time.Second,
		ResyncInterval:  time.Minute,
	}
}

func mustRun(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(context.Background(), cfg, args, &out); err != nil {
		t.Fatalf("cookbooks %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestWriteCommandsReachTheStore(t *testing.T) {
	cfg := testConfig(t)

	mustRun(t, cfg, "opening", "-raw", "1000", "-cooked", "900")
	if out := mustRun(t, cfg, "add", "-date", "2025-01-31", "-desc", "Pay", "-type", "deposit", "-category", "Salary", "-raw", "200"); !strings.Contains(out, "added transaction 1") {
		t.Fatalf("unexpected add output: %q", out)
	}
	mustRun(t, cfg, "add", "-desc", "Market", "-type", "withdrawal", "-category", "Groceries", "-raw", "50", "-cooked", "45")
	mustRun(t, cfg, "edit", "-id", "2", "-cooked", "40")

	out := mustRun(t, cfg, "report")
	for _, want := range []string{"1150.00", "1060.00", "Salary", "-50.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}

	mustRun(t, cfg, "remove", "-id", "1")
	out = mustRun(t, cfg, "report", "-valuation", "cooked")
	if !strings.Contains(out, "860.00") || strings.Contains(out, "Raw") {
		t.Fatalf("unexpected cooked report:\n%s", out)
	}

	out = mustRun(t, cfg, "list")
	if !strings.Contains(out, "Groceries") || strings.Contains(out, "Salary") {
		t.Fatalf("unexpected list:\n%s", out)
	}
}

func TestReportInitialOverrides(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "add", "-desc", "Bus", "-type", "withdrawal", "-category", "Transport", "-raw", "2.50")

	out := mustRun(t, cfg, "report", "-initial-raw", "10", "-initial-cooked", "20")
	if !strings.Contains(out, "7.50") || !strings.Contains(out, "17.50") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestCategoryCommand(t *testing.T) {
	cfg := testConfig(t)
	if out := mustRun(t, cfg, "category", "-name", "Travel"); !strings.Contains(out, `"Travel" with id 7`) {
		t.Fatalf("unexpected output: %q", out)
	}
	mustRun(t, cfg, "add", "-desc", "Flight", "-type", "withdrawal", "-category", "Travel", "-raw", "99")
	if out := mustRun(t, cfg, "list"); !strings.Contains(out, "Travel") {
		t.Fatalf("new category not used:\n%s", out)
	}
}

func TestCommandErrors(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	ctx := context.Background()

	if err := run(ctx, cfg, []string{"frobnicate"}, &out); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := run(ctx, cfg, []string{"edit", "-id", "99", "-cooked", "1"}, &out); !services.IsNotFound(err) {
		t.Fatalf("edit missing: got %v", err)
	}
	if err := run(ctx, cfg, []string{"add", "-desc", "x", "-type", "deposit", "-category", "Salary"}, &out); err == nil {
		t.Fatal("expected error without -raw")
	}
	if err := run(ctx, cfg, []string{"report", "-valuation", "gross"}, &out); err == nil {
		t.Fatal("expected error for unknown valuation")
	}
}
