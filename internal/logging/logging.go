// Package logging configures the process-wide zerolog logger, grounded on
// the teacher's direct use of github.com/rs/zerolog/log throughout
// src/internal/config.go and internal/application/executor — chatflow
// threads a zerolog.Logger explicitly through Engine/eventbus rather than
// relying on the global, but cmd/server still wants one console-formatted
// logger to hand out.
package logging

import (
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Setup parses level ("debug"/"info"/"warn"/"error", default "info") and
// returns a logger writing human-readable, ANSI-colored console output when
// stdout is a terminal, structured JSON otherwise — the same split
// zerolog's own ConsoleWriter exists for. go-isatty detects the terminal
// (more reliable across platforms than an os.ModeCharDevice stat check);
// go-colorable wraps stdout so ConsoleWriter's color codes render on
// Windows terminals too, matching the teacher's console logging stack.
func Setup(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: colorable.NewColorableStdout(), TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
