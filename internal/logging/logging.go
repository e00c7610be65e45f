// Package logging builds the daemon's offsync.Logger and event hooks from
// configuration.
package logging

import (
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unkn0wn-root/offsync"
	asynchook "github.com/unkn0wn-root/offsync/hooks/async"
	logruslog "github.com/unkn0wn-root/offsync/log/logrus"
	slogl "github.com/unkn0wn-root/offsync/log/slog"
	zaplog "github.com/unkn0wn-root/offsync/log/zap"
	"github.com/unkn0wn-root/offsync/sloghooks"
)

type Options struct {
	Backend string // zap | logrus | slog
	Level   string // debug | info | warn | error
	Format  string // json | console

	// File enables size-rotated output; stderr otherwise.
	File       string
	MaxSizeMB  int
	MaxBackups int

	// Writer overrides File and stderr.
	Writer io.Writer
}

// Output is the configured logger plus a slog.Logger writing to the same
// destination, used by event hooks.
type Output struct {
	Logger offsync.Logger
	Slog   *stdslog.Logger

	closers []func() error
}

// Close flushes and releases the output.
func (o *Output) Close() error {
	var first error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Hooks returns sampled slog event hooks behind a bounded async queue. Self-heal
// and offline-fallback events are logged once every sampleEvery occurrences.
// The queue is drained by Close.
func (o *Output) Hooks(sampleEvery uint64, queue int) *asynchook.Hooks {
	raw := sloghooks.New(o.Slog, sloghooks.Options{
		SelfHealEvery: sampleEvery,
		FallbackEvery: sampleEvery,
	})
	h := asynchook.New(raw, 1, queue)
	o.closers = append(o.closers, func() error {
		h.Close()
		return nil
	})
	return h
}

func New(opts Options) (*Output, error) {
	w, closeOut := output(opts)
	out := &Output{closers: []func() error{closeOut}}
	fail := func(err error) (*Output, error) {
		_ = closeOut()
		return nil, err
	}

	var slvl stdslog.Level
	if err := slvl.UnmarshalText([]byte(levelOr(opts.Level))); err != nil {
		return fail(fmt.Errorf("log level: %w", err))
	}
	out.Slog = stdslog.New(slogHandler(w, opts.Format, slvl))

	switch strings.ToLower(opts.Backend) {
	case "", "zap":
		lvl, err := zapcore.ParseLevel(levelOr(opts.Level))
		if err != nil {
			return fail(fmt.Errorf("log level: %w", err))
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		var encoder zapcore.Encoder
		if opts.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(enc)
		} else {
			encoder = zapcore.NewJSONEncoder(enc)
		}
		l := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), lvl))
		out.Logger = zaplog.New(l)
		out.closers = append(out.closers, func() error {
			_ = l.Sync()
			return nil
		})

	case "logrus":
		lvl, err := logrus.ParseLevel(levelOr(opts.Level))
		if err != nil {
			return fail(fmt.Errorf("log level: %w", err))
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lvl)
		if opts.Format == "console" {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		out.Logger = logruslog.New(l, "offsyncd")

	case "slog":
		out.Logger = slogl.Logger{L: out.Slog}

	default:
		return fail(fmt.Errorf("unknown log backend: %s", opts.Backend))
	}
	return out, nil
}

func slogHandler(w io.Writer, format string, lvl stdslog.Level) stdslog.Handler {
	ho := &stdslog.HandlerOptions{Level: lvl}
	if format == "console" {
		return stdslog.NewTextHandler(w, ho)
	}
	return stdslog.NewJSONHandler(w, ho)
}

func output(opts Options) (io.Writer, func() error) {
	if opts.Writer != nil {
		return opts.Writer, func() error { return nil }
	}
	if opts.File == "" {
		return os.Stderr, func() error { return nil }
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	return lj, lj.Close
}

func levelOr(l string) string {
	if l == "" {
		return "info"
	}
	return strings.ToLower(l)
}
