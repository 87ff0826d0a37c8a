package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/thinkpilot/internal/logbook"
)

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "thinkpilot ") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"fly"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), `unknown command "fly"`) {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestLogCommandPrintsTail(t *testing.T) {
	dir := t.TempDir()
	journal, err := logbook.New(filepath.Join(dir, "logs", "journal.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	for i := 0; i < 4; i++ {
		journal.Info("entry-%d", i)
	}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"log", "--dir", dir, "-n", "2"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if strings.Contains(out, "entry-1") || !strings.Contains(out, "entry-2") || !strings.Contains(out, "entry-3") {
		t.Fatalf("unexpected tail:\n%s", out)
	}
	if !strings.Contains(out, fmt.Sprintf("(showing %d of %d entries)", 2, 4)) {
		t.Fatalf("missing summary:\n%s", out)
	}
}

func TestLogCommandEmptyJournal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"log", "--dir", t.TempDir()}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "No journal entries yet.") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestBadConfigFailsSetup(t *testing.T) {
	dir := t.TempDir()
	if _, err := setup(dir, nil); err != nil {
		t.Fatalf("setup with fresh dir: %v", err)
	}
	t.Setenv("THINKPILOT_LOG_LEVEL", "shout")
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"log", "--dir", dir}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestHelpFlagSucceeds(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"serve", "--help"}, {"log", "-h"}} {
		var stdout, stderr bytes.Buffer
		if code := run(context.Background(), args, &stdout, &stderr); code != 0 {
			t.Fatalf("%v: exit code = %d, want 0", args, code)
		}
		if !strings.Contains(stderr.String(), "-dir") {
			t.Fatalf("%v: usage not printed: %q", args, stderr.String())
		}
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"log", "--bogus"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestServeStopsCleanlyOnCancel(t *testing.T) {
	t.Setenv("THINKPILOT_HOST", "")
	t.Setenv("THINKPILOT_PORT", "")
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"serve", "--dir", dir, "--port", "0"}, &stdout, &stderr)
	}()

	logPath := filepath.Join(dir, "logs", "thinkpilot.log")
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(logPath)
		if strings.Contains(string(data), "magic todo ready") {
			break
		}
		select {
		case code := <-done:
			t.Fatalf("serve exited early with %d", code)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became ready:\n%s", data)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("exit code = %d, want 0; stderr:\n%s", code, stderr.String())
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), "stopped") {
		t.Fatalf("shutdown not logged:\n%s", data)
	}
}
