package config

import (
	"fmt"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/flagx"
)

// Commands that accept configuration.
const (
	CommandCreate  = "create"
	CommandRestore = "restore"
	CommandInspect = "inspect"
	CommandHistory = "history"
)

// CreateConfig is the create command's merged settings. RcloneDest is an
// rclone remote path; when set the finished archive is copied there.
type CreateConfig struct {
	Sources    []string
	Output     string
	Level      int
	RcloneDest string
	Force      bool
}

type RestoreConfig struct {
	Backup string
	Output string
	Force  bool
}

type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Config holds the merged settings for one command invocation.
type Config struct {
	Create  CreateConfig
	Restore RestoreConfig
	S3      S3Config

	// HistoryDB is the SQLite file backups are recorded in. Empty disables
	// the history.
	HistoryDB string

	// Set from flags only.
	ConfigFile   string
	Password     string
	PasswordSet  bool
	Verbose      bool
	HistoryLimit int
	Args         []string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Create.Output = "."
	c.Create.Level = 3
	c.Restore.Output = "."
	c.HistoryLimit = 20
}

// Load builds the configuration for command from defaults, the optional
// config file and args (the arguments after the command name).
func Load(command string, args []string) (*Config, error) {
	if !knownCommand(command) {
		return nil, fmt.Errorf("%w: unknown command %q", common.ErrConfiguration, command)
	}

	cfg := &Config{}
	cfg.LoadDefaults()

	path, err := flagx.ConfigFileFlag(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}
	if path != "" {
		cfg.ConfigFile = path
		if err := parseJSON(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := parseFlags(cfg, command, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func knownCommand(command string) bool {
	switch command {
	case CommandCreate, CommandRestore, CommandInspect, CommandHistory:
		return true
	}
	return false
}
