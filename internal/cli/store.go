package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/calvinalkan/statefile"
	"github.com/calvinalkan/statefile/fs"
)

// Document is the value type the CLI stores: one JSON object per file.
type Document = map[string]any

// docSerializer is the JSON serializer with an empty object, rather than a
// nil map, as the default value.
type docSerializer struct {
	statefile.Serializer[Document]
}

func (docSerializer) DefaultValue() Document {
	return Document{}
}

func newDocSerializer() statefile.Serializer[Document] {
	return docSerializer{statefile.JSON[Document]()}
}

// openStore opens the configured state file. With resetCorrupt, corrupt
// content is replaced by an empty document instead of failing; the warning
// surfaces through o.
func openStore(cfg Config, o *IO, logger *slog.Logger, resetCorrupt bool) (*statefile.Store[Document], error) {
	opts := statefile.Options[Document]{Logger: logger}

	if resetCorrupt {
		opts.CorruptionHandler = func(corr *statefile.CorruptionError) (Document, error) {
			o.Warn("state file was corrupt and has been reset:", corr)

			return Document{}, nil
		}
	}

	return statefile.Open(cfg.File, newDocSerializer(), opts)
}

// withLock runs fn, holding an advisory file lock around it when the
// config asks for one. The engine itself is single-process; the lock is
// how this CLI excludes concurrent invocations against the same file.
func withLock(ctx context.Context, cfg Config, fn func() error) error {
	if !cfg.Lock {
		return fn()
	}

	lock, err := fs.Flock(ctx, cfg.File)
	if err != nil {
		return err
	}

	defer func() { _ = lock.Close() }()

	return fn()
}

// buildLogger translates the configured log level into a slog logger
// writing to stderr. An empty level discards everything.
func buildLogger(level string) *slog.Logger {
	var lvl slog.Level

	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return slog.New(slog.DiscardHandler)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
