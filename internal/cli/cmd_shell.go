package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/statefile"
)

const shellHelp = `Commands:
  get                  Print the current document
  set <json>           Replace the document
  merge <json>         Shallow-merge into the document
  help                 Show this help
  exit / quit / q      Exit`

// ShellCmd opens an interactive session against one store instance, so
// every command in the session shares the cache and the update queue.
//
// The reader is accepted for symmetry with [Run] but liner drives the
// terminal directly; non-terminal input ends the session at EOF.
func ShellCmd(cfg Config, _ io.Reader) *Command {
	flags := flag.NewFlagSet("shell", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "shell",
		Short: "Interactive session against the state file",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return withLock(ctx, cfg, func() error {
				st, err := openStore(cfg, o, buildLogger(cfg.LogLevel), false)
				if err != nil {
					return err
				}

				defer func() { _ = st.Close() }()

				return runShell(ctx, o, st)
			})
		},
	}
}

func runShell(ctx context.Context, o *IO, st *statefile.Store[Document]) error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()

	line.SetCtrlCAborts(true)

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := line.Prompt("statefile> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if done := runShellCommand(ctx, o, st, input); done {
			return nil
		}
	}
}

// runShellCommand executes one shell line. Returns true when the session
// should end.
func runShellCommand(ctx context.Context, o *IO, st *statefile.Store[Document], input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "exit", "quit", "q":
		return true

	case "help":
		o.Println(shellHelp)

	case "get":
		doc, err := st.Get(ctx)
		if err != nil {
			o.ErrPrintln("error:", err)

			return false
		}

		_ = printDoc(o, doc, true)

	case "set":
		doc, err := parseDocArg(splitJSONArg(rest))
		if err != nil {
			o.ErrPrintln("error:", err)

			return false
		}

		_, err = st.Update(ctx, func(Document) (Document, error) { return doc, nil })
		if err != nil {
			o.ErrPrintln("error:", err)
		}

	case "merge":
		patch, err := parseDocArg(splitJSONArg(rest))
		if err != nil {
			o.ErrPrintln("error:", err)

			return false
		}

		_, err = st.Update(ctx, func(doc Document) (Document, error) {
			return mergeDocs(doc, patch), nil
		})
		if err != nil {
			o.ErrPrintln("error:", err)
		}

	default:
		o.ErrPrintln("error: unknown command:", cmd, "(try 'help')")
	}

	return false
}

// splitJSONArg shapes a raw remainder string like a positional argv so set
// and merge share their parsing with the non-interactive commands.
func splitJSONArg(rest string) []string {
	if rest == "" {
		return nil
	}

	return []string{rest}
}
