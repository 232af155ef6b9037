package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReadAllLimit(t *testing.T) {
	buf, err := ReadAllLimit(strings.NewReader("12345"), 5)
	if err != nil || string(buf) != "12345" {
		t.Fatalf("got %q, %v", buf, err)
	}

	buf, err = ReadAllLimit(strings.NewReader("123456"), 5)
	if !errors.Is(err, ErrIOLimitReached) {
		t.Fatalf("expected ErrIOLimitReached, got %v", err)
	}
	if string(buf) != "12345" {
		t.Errorf("truncated buffer = %q", buf)
	}
}

func TestReadFileLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.flac")
	if err := os.WriteFile(path, []byte("fLaC0000"), 0o644); err != nil {
		t.Fatal(err)
	}

	if buf, err := ReadFileLimit(path, 64); err != nil || string(buf) != "fLaC0000" {
		t.Fatalf("got %q, %v", buf, err)
	}
	if _, err := ReadFileLimit(path, 4); !errors.Is(err, ErrIOLimitReached) {
		t.Fatalf("expected ErrIOLimitReached, got %v", err)
	}
	if _, err := ReadFileLimit(filepath.Join(t.TempDir(), "missing"), 4); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}

func TestLogContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	parent := zap.New(core)

	ctx, log := LogContextWith(context.Background(), parent, zap.Uint64("sequence", 7))
	ctx = LogContext(ctx, zap.String("artifact", "a.flac"))

	log.Info("direct")
	GetLogFromContext(ctx, parent).Info("from context")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if got := entries[1].ContextMap(); got["sequence"] != uint64(7) || got["artifact"] != "a.flac" {
		t.Errorf("context fields = %v", got)
	}
}

func TestPanicRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	func() {
		defer PanicRecovery(zap.New(core))
		panic("boom")
	}()

	if logs.FilterMessage("recovered panic").Len() != 1 {
		t.Fatal("panic was not logged")
	}
}

func TestPanicRecoveryReport(t *testing.T) {
	var reported error
	func() {
		defer PanicRecoveryReport(zap.NewNop(), func(err error) { reported = err })
		panic("worker died")
	}()

	if reported == nil || !strings.Contains(reported.Error(), "worker died") {
		t.Fatalf("reported = %v", reported)
	}
}

func TestDetachedLogContext(t *testing.T) {
	ctx, cancel := context.WithCancel(LogContext(context.Background(), zap.String("k", "v")))
	cancel()

	detached := DetachedLogContext(ctx)
	if detached.Err() != nil {
		t.Fatal("detached context should not be cancelled")
	}
	if len(GetLogContextFields(detached)) != 1 {
		t.Fatal("fields were not carried over")
	}
}
