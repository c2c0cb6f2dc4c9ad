package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		gt.Equal(t, logging.ParseLevel(in), want)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("warn", buf)

	logger.Info("skipped record")
	logger.Warn("customer sync failed")

	out := buf.String()
	gt.S(t, out).NotContains("skipped record")
	gt.S(t, out).Contains("customer sync failed")
}

func TestWithAndFrom(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("debug", buf).With("owner", "pat")
	ctx := logging.With(context.Background(), logger)

	got := logging.From(ctx)
	gt.Equal(t, got, logger)

	got.Info("imported")
	gt.S(t, buf.String()).Contains("imported")
	gt.S(t, buf.String()).Contains("pat")
}

func TestFromFallsBackToDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	custom := logging.New("info", buf)
	logging.SetDefault(custom)

	gt.Equal(t, logging.From(context.Background()), custom)
}
