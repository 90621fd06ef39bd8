// Package dojolog wires the subnet's structured logging. It follows the
// teacher's idiom directly — every call site elsewhere in this module reads
// log.Info("message", "key1", v1, "key2", v2), the same convention found in
// eth/backend_rollup.go and core/rawdb/accessors_chain_rollup.go.
package dojolog

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the root log handler.
type Options struct {
	// Level is one of "crit", "error", "warn", "info", "debug", "trace".
	Level string
	// Path, if non-empty, rotates file output through lumberjack instead of
	// writing to stderr only.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup installs the root handler. It never returns an error: an
// unparseable level falls back to "info" and is logged as a warning, since
// a logging misconfiguration must not prevent the process from starting.
func Setup(opts Options) {
	lvl, err := log.LvlFromString(normalizeLevel(opts.Level))
	if err != nil {
		lvl = log.LvlInfo
	}

	var handler log.Handler
	if opts.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    nonZero(opts.MaxSizeMB, 100),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			MaxAge:     nonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		handler = log.MultiHandler(
			log.StreamHandler(os.Stderr, log.TerminalFormat(true)),
			log.StreamHandler(rotator, log.JSONFormat()),
		)
	} else {
		handler = log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	}

	log.Root().SetHandler(log.LvlFilterHandler(lvl, handler))
	if err != nil {
		log.Warn("unparseable logging level, using info", "given", opts.Level)
	}
	if opts.Level != "" && normalizeLevel(opts.Level) != opts.Level {
		log.Warn("logging level normalized", "given", opts.Level, "used", normalizeLevel(opts.Level))
	}
}

func normalizeLevel(s string) string {
	if s == "" {
		return "info"
	}
	return s
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
