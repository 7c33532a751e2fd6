package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// WatchCmd streams the document until interrupted.
func WatchCmd(cfg Config) *Command {
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)
	pretty := flags.Bool("pretty", false, "Indent the output")
	count := flags.Int("count", 0, "Exit after `n` emissions (0 = until interrupted)")

	return &Command{
		Flags: flags,
		Usage: "watch [flags]",
		Short: "Stream the document: current value, then every change",
		Long: `Stream the document: the current value first, then every change made
through this process. The stream is conflated; if values change faster
than they are printed, intermediate values are skipped.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			st, err := openStore(cfg, o, buildLogger(cfg.LogLevel), false)
			if err != nil {
				return err
			}

			defer func() { _ = st.Close() }()

			seen := 0

			for doc, err := range st.Watch(ctx) {
				if err != nil {
					return err
				}

				printErr := printDoc(o, doc, *pretty)
				if printErr != nil {
					return printErr
				}

				seen++
				if *count > 0 && seen >= *count {
					return nil
				}
			}

			return nil
		},
	}
}
