package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/sealback/internal/catalog"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/config"
	"github.com/dmitrijs2005/sealback/internal/container"
	"github.com/dmitrijs2005/sealback/internal/logging"
	"github.com/dmitrijs2005/sealback/internal/pipeline"
	"github.com/dmitrijs2005/sealback/internal/upload"
	"github.com/dustin/go-humanize"
)

func (a *App) create(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	if len(cfg.Create.Sources) == 0 {
		return fmt.Errorf("%w: no source provided", common.ErrConfiguration)
	}

	pw, err := a.password(cfg, true)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	history, closeHistory := a.openHistory(ctx, cfg, log)
	defer closeHistory()

	var up upload.Uploader
	if cfg.Create.RcloneDest != "" {
		up = a.newUploader(cfg, log)
	}

	res, err := pipeline.New(log, up, history).Create(ctx, pipeline.CreateRequest{
		Sources:    cfg.Create.Sources,
		Output:     cfg.Create.Output,
		Level:      cfg.Create.Level,
		Force:      cfg.Create.Force,
		Password:   pw,
		UploadDest: cfg.Create.RcloneDest,
	})
	if res != nil {
		fmt.Fprintf(a.stdout, "Backup created: %s (%s)\n", res.Path, humanize.Bytes(uint64(res.Size)))
	}
	if err != nil {
		return err
	}
	if res.Uploaded {
		fmt.Fprintf(a.stdout, "Uploaded to %s\n", cfg.Create.RcloneDest)
	}
	return nil
}

func (a *App) restore(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	if cfg.Restore.Backup == "" {
		return fmt.Errorf("%w: no backup file provided", common.ErrConfiguration)
	}

	pw, err := a.password(cfg, false)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	history, closeHistory := a.openHistory(ctx, cfg, log)
	defer closeHistory()

	res, err := pipeline.New(log, nil, history).Restore(ctx, pipeline.RestoreRequest{
		Archive:     cfg.Restore.Backup,
		Destination: cfg.Restore.Output,
		Force:       cfg.Restore.Force,
		Password:    pw,
	})
	if err != nil {
		return err
	}

	m := res.Manifest
	fmt.Fprintf(a.stdout, "Restored %d files, %d directories, %d symlinks (%s) to %s\n",
		res.Report.Files, res.Report.Directories, res.Report.Symlinks,
		humanize.Bytes(uint64(res.Report.Bytes)), res.Destination)
	fmt.Fprintf(a.stdout, "Backup created %s by %s %s\n",
		m.CreatedAt.Local().Format(time.DateTime), m.Tool.Name, m.Tool.Version)
	fmt.Fprintln(a.stdout, "Contents:")
	for _, s := range m.Sources {
		fmt.Fprintf(a.stdout, "  %-9s %s\n", s.Type, s.Path)
	}
	return nil
}

func (a *App) inspect(cfg *config.Config) error {
	if len(cfg.Args) != 1 {
		return fmt.Errorf("%w: inspect takes exactly one archive", common.ErrConfiguration)
	}
	path := cfg.Args[0]

	f, err := os.Open(path)
	if err != nil {
		return common.IOError("open archive", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return common.IOError("stat archive", err)
	}

	limit := int64(len(container.Magic)) + 4 + container.MaxHeaderSize
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return common.IOError("read archive", err)
	}

	h, _, err := container.ParseHeader(data)
	if err != nil {
		return err
	}
	salt, err := h.Salt()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", path)
	fmt.Fprintf(tw, "Size:\t%s\n", humanize.Bytes(uint64(fi.Size())))
	fmt.Fprintf(tw, "Format version:\t%d\n", h.FormatVersion)
	fmt.Fprintf(tw, "Cipher:\t%s\n", h.Cipher)
	fmt.Fprintf(tw, "KDF:\t%s (N=%d, r=%d, p=%d, salt %d bytes)\n", h.KDF, h.KDFParams.N, h.KDFParams.R, h.KDFParams.P, len(salt))
	fmt.Fprintf(tw, "Compression:\t%s\n", h.Compression)
	return tw.Flush()
}

func (a *App) history(ctx context.Context, cfg *config.Config) error {
	if cfg.HistoryDB == "" {
		return fmt.Errorf("%w: no history database configured (use --history-db or history_db)", common.ErrConfiguration)
	}

	c, err := catalog.Open(ctx, cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer c.Close()

	recs, err := c.List(ctx, cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.stdout, "No backups recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tOPERATION\tARCHIVE\tDESTINATION\tSIZE\tSOURCES")
	for _, r := range recs {
		size := "-"
		if r.Size > 0 {
			size = humanize.Bytes(uint64(r.Size))
		}
		dest := r.Destination
		if dest == "" {
			dest = "-"
		}
		paths := make([]string, 0, len(r.Sources))
		for _, s := range r.Sources {
			paths = append(paths, s.Path)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Operation, r.ArchivePath, dest, size, strings.Join(paths, ", "))
	}
	return tw.Flush()
}
