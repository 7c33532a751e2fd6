package cli

import (
	"context"
	"encoding/json"

	flag "github.com/spf13/pflag"
)

// GetCmd prints the current document.
func GetCmd(cfg Config) *Command {
	flags := flag.NewFlagSet("get", flag.ContinueOnError)
	pretty := flags.Bool("pretty", false, "Indent the output")
	resetCorrupt := flags.Bool("reset-corrupt", false, "Replace corrupt content with an empty document")

	return &Command{
		Flags: flags,
		Usage: "get",
		Short: "Print the current document as JSON",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			st, err := openStore(cfg, o, buildLogger(cfg.LogLevel), *resetCorrupt)
			if err != nil {
				return err
			}

			defer func() { _ = st.Close() }()

			doc, err := st.Get(ctx)
			if err != nil {
				return err
			}

			return printDoc(o, doc, *pretty)
		},
	}
}

func printDoc(o *IO, doc Document, pretty bool) error {
	var (
		data []byte
		err  error
	)

	if pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}

	if err != nil {
		return err
	}

	o.Println(string(data))

	return nil
}
