package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/spf13/pflag"
)

// ErrHelp is returned by Load when -h or --help was given.
var ErrHelp = pflag.ErrHelp

type flagValues struct {
	configFile string
	verbose    bool
	historyDB  string
	password   string
	output     string
	level      int
	rclone     string
	force      bool
	limit      int
}

func newFlagSet(command string, v *flagValues) *pflag.FlagSet {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.StringVarP(&v.configFile, "config-file", "c", "", "load configuration from a JSON file")
	fs.BoolVarP(&v.verbose, "verbose", "v", false, "log every pipeline stage")
	fs.StringVar(&v.historyDB, "history-db", "", "SQLite file recording created and restored backups")

	switch command {
	case CommandCreate:
		fs.StringVarP(&v.output, "output", "o", ".", "output directory or .seal file")
		fs.IntVarP(&v.level, "level", "l", 3, "zstd compression level (0-22, 0 = library default)")
		fs.StringVar(&v.rclone, "rclone-dest", "", "upload destination (rclone remote, s3://bucket/prefix or http(s) URL)")
		fs.BoolVar(&v.force, "force", false, "overwrite the output file if it already exists")
		fs.StringVar(&v.password, "password", "", "encryption password (prefer the prompt or "+common.PasswordEnvVar+")")
	case CommandRestore:
		fs.StringVarP(&v.output, "output", "o", ".", "destination directory")
		fs.BoolVarP(&v.force, "force", "f", false, "restore into a non-empty directory, overwriting files")
		fs.StringVar(&v.password, "password", "", "decryption password (prefer the prompt or "+common.PasswordEnvVar+")")
	case CommandHistory:
		fs.IntVar(&v.limit, "limit", 20, "number of records to show")
	}
	return fs
}

// Usage returns the flag help for command.
func Usage(command string) string {
	return newFlagSet(command, &flagValues{}).FlagUsages()
}

// parseFlags applies the flags in args that were explicitly given and
// stores the positional arguments.
func parseFlags(cfg *Config, command string, args []string) error {
	var v flagValues
	fs := newFlagSet(command, &v)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ErrHelp
		}
		return fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}

	cfg.Verbose = v.verbose
	if fs.Changed("history-db") {
		cfg.HistoryDB = v.historyDB
	}
	if fs.Changed("password") {
		cfg.Password = v.password
		cfg.PasswordSet = true
	}
	cfg.Args = fs.Args()

	switch command {
	case CommandCreate:
		if len(cfg.Args) > 0 {
			cfg.Create.Sources = cfg.Args
		}
		if fs.Changed("output") {
			cfg.Create.Output = v.output
		}
		if fs.Changed("level") {
			cfg.Create.Level = v.level
		}
		if fs.Changed("rclone-dest") {
			cfg.Create.RcloneDest = v.rclone
		}
		if fs.Changed("force") {
			cfg.Create.Force = v.force
		}
	case CommandRestore:
		if len(cfg.Args) > 1 {
			return fmt.Errorf("%w: restore takes a single archive, got %d", common.ErrConfiguration, len(cfg.Args))
		}
		if len(cfg.Args) == 1 {
			cfg.Restore.Backup = cfg.Args[0]
		}
		if fs.Changed("output") {
			cfg.Restore.Output = v.output
		}
		if fs.Changed("force") {
			cfg.Restore.Force = v.force
		}
	case CommandHistory:
		if fs.Changed("limit") {
			if v.limit < 1 {
				return fmt.Errorf("%w: --limit must be positive", common.ErrConfiguration)
			}
			cfg.HistoryLimit = v.limit
		}
	}
	return nil
}
