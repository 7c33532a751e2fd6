package cli

import (
	"context"
	"maps"

	flag "github.com/spf13/pflag"
)

// MergeCmd shallow-merges a JSON object into the document.
func MergeCmd(cfg Config) *Command {
	flags := flag.NewFlagSet("merge", flag.ContinueOnError)
	retries := flags.Uint64("retry", 0, "Retry rename conflicts up to `n` times with backoff")

	return &Command{
		Flags: flags,
		Usage: "merge <json>",
		Short: "Shallow-merge a JSON object into the document",
		Long: `Shallow-merge a JSON object into the document.

Top-level keys of the argument replace the document's keys; a null value
deletes the key. The merge runs as a single read-modify-write transform,
so concurrent merges within one process never lose keys to each other.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			patch, err := parseDocArg(args)
			if err != nil {
				return err
			}

			return withLock(ctx, cfg, func() error {
				st, err := openStore(cfg, o, buildLogger(cfg.LogLevel), false)
				if err != nil {
					return err
				}

				defer func() { _ = st.Close() }()

				return updateWithRetry(ctx, st, *retries, func(doc Document) (Document, error) {
					return mergeDocs(doc, patch), nil
				})
			})
		},
	}
}

// mergeDocs returns a new document; the input is never mutated because the
// store treats returned values as immutable.
func mergeDocs(doc, patch Document) Document {
	out := make(Document, len(doc)+len(patch))
	maps.Copy(out, doc)

	for k, v := range patch {
		if v == nil {
			delete(out, k)

			continue
		}

		out[k] = v
	}

	return out
}
