package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/statefile"
)

var (
	errJSONRequired  = errors.New("a JSON object argument is required")
	errNotAnObject   = errors.New("argument must be a JSON object")
	errTooManyValues = errors.New("expected exactly one JSON argument")
)

// SetCmd replaces the document wholesale.
func SetCmd(cfg Config) *Command {
	flags := flag.NewFlagSet("set", flag.ContinueOnError)
	retries := flags.Uint64("retry", 0, "Retry rename conflicts up to `n` times with backoff")

	return &Command{
		Flags: flags,
		Usage: "set <json>",
		Short: "Replace the document with the given JSON object",
		Long: `Replace the document with the given JSON object.

Rename conflicts indicate another process writing the same file. With
--retry, the write is retried with fibonacci backoff; prefer configuring
"lock": true instead when contention is expected.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			doc, err := parseDocArg(args)
			if err != nil {
				return err
			}

			return withLock(ctx, cfg, func() error {
				st, err := openStore(cfg, o, buildLogger(cfg.LogLevel), false)
				if err != nil {
					return err
				}

				defer func() { _ = st.Close() }()

				return updateWithRetry(ctx, st, *retries, func(Document) (Document, error) {
					return doc, nil
				})
			})
		},
	}
}

func parseDocArg(args []string) (Document, error) {
	if len(args) == 0 {
		return nil, errJSONRequired
	}

	if len(args) > 1 {
		return nil, errTooManyValues
	}

	var doc Document

	err := json.Unmarshal([]byte(args[0]), &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNotAnObject, err)
	}

	if doc == nil {
		doc = Document{}
	}

	return doc, nil
}

// updateWithRetry applies transform through the store, retrying rename
// conflicts when asked to. Every other failure is final.
func updateWithRetry(ctx context.Context, st *statefile.Store[Document], retries uint64, transform func(Document) (Document, error)) error {
	apply := func(ctx context.Context) error {
		_, err := st.Update(ctx, transform)
		if err != nil && errors.Is(err, statefile.ErrRenameConflict) {
			return retry.RetryableError(err)
		}

		return err
	}

	if retries == 0 {
		return apply(ctx)
	}

	backoff := retry.WithMaxRetries(retries, retry.NewFibonacci(10*time.Millisecond))

	return retry.Do(ctx, backoff, apply)
}
