package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/statefile/fs"
)

// PrintConfigCmd shows the resolved configuration.
func PrintConfigCmd(cfg Config) *Command {
	flags := flag.NewFlagSet("config", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "config",
		Short: "Print the resolved configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Println("file:", cfg.File)
			o.Println("log_level:", cfg.LogLevel)
			o.Println("lock:", cfg.Lock)

			return nil
		},
	}
}

var errConfigExists = errors.New("config file already exists")

const defaultConfigTemplate = `{
	// Path of the state file; a relative path is resolved against the
	// working directory.
	"file": "state.json",

	// One of "debug", "info", "warn", "error". Omit to disable logging.
	// "log_level": "warn",

	// Guard mutating commands with an advisory file lock. Enable when
	// several processes share the state file.
	// "lock": true,
}
`

// InitConfigCmd writes a starter config file into the working directory.
func InitConfigCmd(workDir string) *Command {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "init",
		Short: "Write a starter " + ConfigFileName + " to the working directory",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			fsys := fs.NewReal()
			path := filepath.Join(workDir, ConfigFileName)

			exists, err := fsys.Exists(path)
			if err != nil {
				return err
			}

			if exists {
				return errConfigExists
			}

			err = fsys.WriteFileAtomic(path, []byte(defaultConfigTemplate), os.FileMode(0o644))
			if err != nil {
				return err
			}

			o.Println("wrote", ConfigFileName)

			return nil
		},
	}
}
