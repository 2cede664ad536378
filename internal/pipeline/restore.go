package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/sealback/internal/archive"
	"github.com/dmitrijs2005/sealback/internal/catalog"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/container"
	"github.com/dmitrijs2005/sealback/internal/extract"
	"github.com/dmitrijs2005/sealback/internal/filex"
	"github.com/dmitrijs2005/sealback/internal/manifest"
)

// RestoreRequest names an archive and where to extract it. Without Force the
// destination must be empty or missing; with it, existing files are replaced.
type RestoreRequest struct {
	Archive     string
	Destination string
	Force       bool
	Password    []byte
}

type RestoreResult struct {
	Destination string
	Manifest    *manifest.Manifest
	Report      *extract.Report
}

func (r RestoreRequest) validate() error {
	if r.Archive == "" {
		return fmt.Errorf("%w: no backup file provided", common.ErrConfiguration)
	}
	if !strings.HasSuffix(r.Archive, common.ArchiveSuffix) {
		return fmt.Errorf("%w: backup file must have %s extension: %s", common.ErrConfiguration, common.ArchiveSuffix, r.Archive)
	}
	if len(r.Password) == 0 {
		return fmt.Errorf("%w: empty password", common.ErrConfiguration)
	}
	return nil
}

// Restore decrypts req.Archive and extracts it into req.Destination. Nothing
// is written to the destination unless the archive authenticates, its
// manifest validates and every member passes path validation.
func (o *Orchestrator) Restore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	r := newRun(o.log.With("op", "restore"), o.OnTransition)

	res, err := o.restore(ctx, r, req)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	r.to(ctx, StateDone)

	o.record(ctx, catalog.Record{
		Operation:   catalog.OperationRestore,
		ArchivePath: req.Archive,
		Destination: res.Destination,
		Sources:     res.Manifest.Sources,
	})
	return res, nil
}

func (o *Orchestrator) restore(ctx context.Context, r *run, req RestoreRequest) (*RestoreResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	dest := req.Destination
	if dest == "" {
		dest = "."
	}
	if err := filex.EnsureDir(dest); err != nil {
		return nil, common.IOError("create destination", err)
	}

	data, err := os.ReadFile(req.Archive)
	if err != nil {
		return nil, common.IOError("read archive", err)
	}

	ws, err := o.newWorkspace("restore")
	if err != nil {
		return nil, err
	}
	defer o.cleanup(ctx, ws)

	o.log.Info(ctx, "decrypting archive", "path", req.Archive)
	payload, err := container.Decode(data, req.Password)
	if err != nil {
		return nil, err
	}
	if err := filex.WriteFileAtomic(ws.Path(stagedCompressed), bytes.NewReader(payload), 0o600); err != nil {
		return nil, common.IOError("stage payload", err)
	}
	r.to(ctx, StateStagingBuilt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.log.Info(ctx, "decompressing payload")
	if err := o.decompressPayload(ws); err != nil {
		return nil, err
	}

	m, err := o.readManifest(ws)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(m); err != nil {
		return nil, err
	}
	r.to(ctx, StatePayloadBuilt)
	o.log.Debug(ctx, "manifest validated", "created_at", m.CreatedAt, "sources", len(m.Sources))

	empty, err := filex.IsDirEmpty(dest)
	if err != nil {
		return nil, common.IOError("read destination", err)
	}
	if !empty && !req.Force {
		return nil, fmt.Errorf("%w: destination directory is not empty: %s (use --force to overwrite)", common.ErrConfiguration, dest)
	}

	a, err := archive.Open(ws.Path(stagedTar), common.ManifestName)
	if err != nil {
		return nil, err
	}

	o.log.Info(ctx, "extracting files", "dest", dest)
	report, err := extract.Extract(ctx, a, dest, extract.Options{Overwrite: req.Force, Logger: o.log})
	if err != nil {
		return nil, err
	}
	r.to(ctx, StateContainerFinalized)
	o.log.Info(ctx, "restore complete", "files", report.Files, "directories", report.Directories, "bytes", report.Bytes)

	return &RestoreResult{
		Destination: dest,
		Manifest:    m,
		Report:      report,
	}, nil
}

func (o *Orchestrator) decompressPayload(ws *filex.Workspace) error {
	src, err := os.Open(ws.Path(stagedCompressed))
	if err != nil {
		return common.IOError("open staged payload", err)
	}
	defer src.Close()

	dst, err := ws.Create(stagedTar)
	if err != nil {
		return common.IOError("create staged tar", err)
	}

	err = o.codec.Decompress(dst, src)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = common.IOError("close staged tar", cerr)
	}
	return err
}

func (o *Orchestrator) readManifest(ws *filex.Workspace) (*manifest.Manifest, error) {
	f, err := os.Open(ws.Path(stagedTar))
	if err != nil {
		return nil, common.IOError("open staged tar", err)
	}
	defer f.Close()

	return manifest.ReadFromTar(f)
}
