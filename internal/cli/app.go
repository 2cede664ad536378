package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/sealback/internal/buildinfo"
	"github.com/dmitrijs2005/sealback/internal/catalog"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/config"
	"github.com/dmitrijs2005/sealback/internal/logging"
	"github.com/dmitrijs2005/sealback/internal/upload"
)

const commandVersion = "version"

type App struct {
	stdout io.Writer
	stderr io.Writer

	lookupEnv func(string) (string, bool)
	// newUploader builds the uploader for create; replaced in tests.
	newUploader func(cfg *config.Config, log logging.Logger) upload.Uploader
}

func NewApp(stdout, stderr io.Writer) *App {
	return &App{
		stdout:      stdout,
		stderr:      stderr,
		lookupEnv:   os.LookupEnv,
		newUploader: defaultUploader,
	}
}

func defaultUploader(cfg *config.Config, log logging.Logger) upload.Uploader {
	return upload.New(upload.Config{
		S3: upload.S3Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		},
		MaxRetries: upload.DefaultMaxRetries,
		RetryBase:  upload.DefaultRetryBase,
		Logger:     log,
	})
}

// Run executes the command in args (without the program name) and returns
// the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage(a.stderr)
		return ExitConfiguration
	}

	command, rest := args[0], args[1:]
	switch command {
	case "-h", "--help", "help":
		a.usage(a.stdout)
		return ExitOK
	case commandVersion:
		buildinfo.PrintBuildData(a.stdout)
		return ExitOK
	}

	cfg, err := config.Load(command, rest)
	if errors.Is(err, config.ErrHelp) {
		fmt.Fprintf(a.stdout, "Usage: %s %s [flags]\n\n%s", common.ToolName, command, config.Usage(command))
		return ExitOK
	}
	if err != nil {
		return a.fail(err)
	}

	log := logging.NewTextLogger(a.stderr, cfg.Verbose)

	switch command {
	case config.CommandCreate:
		err = a.create(ctx, cfg, log)
	case config.CommandRestore:
		err = a.restore(ctx, cfg, log)
	case config.CommandInspect:
		err = a.inspect(cfg)
	case config.CommandHistory:
		err = a.history(ctx, cfg)
	}
	if err != nil {
		return a.fail(err)
	}
	return ExitOK
}

func (a *App) fail(err error) int {
	fmt.Fprintln(a.stderr, Message(err))
	return ExitCode(err)
}

func (a *App) usage(w io.Writer) {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage: %s <command> [flags] [args]\n\n", common.ToolName)
	b.WriteString("Commands:\n")
	b.WriteString("  create [sources...]   create an encrypted backup\n")
	b.WriteString("  restore [archive]     restore a backup into a directory\n")
	b.WriteString("  inspect <archive>     show the archive header\n")
	b.WriteString("  history               list recorded backups\n")
	b.WriteString("  version               print build information\n")
	fmt.Fprintf(&b, "\nRun '%s <command> --help' for the flags of a command.\n", common.ToolName)
	fmt.Fprint(w, b.String())
}

// openHistory opens the history catalog if one is configured. Failures are
// logged and recording is skipped.
func (a *App) openHistory(ctx context.Context, cfg *config.Config, log logging.Logger) (catalog.Repository, func()) {
	if cfg.HistoryDB == "" {
		return nil, func() {}
	}
	c, err := catalog.Open(ctx, cfg.HistoryDB)
	if err != nil {
		log.Warn(ctx, "history disabled", "path", cfg.HistoryDB, "error", err)
		return nil, func() {}
	}
	return c, func() {
		if err := c.Close(); err != nil {
			log.Warn(ctx, "failed to close history", "error", err)
		}
	}
}
