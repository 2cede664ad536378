package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/sealback/internal/archive"
	"github.com/dmitrijs2005/sealback/internal/catalog"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/compress"
	"github.com/dmitrijs2005/sealback/internal/container"
	"github.com/dmitrijs2005/sealback/internal/cryptox"
	"github.com/dmitrijs2005/sealback/internal/filex"
	"github.com/dmitrijs2005/sealback/internal/manifest"
)

const (
	stagedTar        = "payload.tar"
	stagedCompressed = "payload.tar.zst"
)

// CreateRequest carries everything Create needs.
//
// Fields:
//   - Sources: files or directories to back up, in archive order.
//   - Output: destination directory or .seal file name.
//   - Level: zstd level, 1 to 22.
//   - Force: replace an existing archive at the resolved path.
//   - Password: secret the archive key is derived from. Not retained.
type CreateRequest struct {
	Sources []string
	// Output is a directory or a file name; see ResolveOutputPath.
	Output   string
	Level    int
	Force    bool
	Password []byte
	// KDFParams defaults to cryptox.DefaultKDFParams when zero.
	KDFParams cryptox.KDFParams
	// BaseDir names archive entries; defaults to the working directory.
	BaseDir string
	// UploadDest, when set, is handed to the Uploader after the archive
	// is in place.
	UploadDest string
}

type CreateResult struct {
	Path     string
	Size     int64
	Manifest *manifest.Manifest
	Uploaded bool
}

func (r CreateRequest) validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("%w: no source provided", common.ErrConfiguration)
	}
	if len(r.Password) == 0 {
		return fmt.Errorf("%w: empty password", common.ErrConfiguration)
	}
	return compress.ValidateLevel(r.Level)
}

// Create builds an encrypted archive of req.Sources. If an upload fails the
// archive stays at CreateResult.Path and the error is returned together with
// the result.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	r := newRun(o.log.With("op", "create"), o.OnTransition)

	res, err := o.create(ctx, r, req)
	if err != nil {
		return res, r.fail(ctx, err)
	}
	r.to(ctx, StateDone)

	o.record(ctx, catalog.Record{
		Operation:   catalog.OperationCreate,
		ArchivePath: res.Path,
		Destination: req.UploadDest,
		Size:        res.Size,
		Sources:     res.Manifest.Sources,
	})
	return res, nil
}

func (o *Orchestrator) create(ctx context.Context, r *run, req CreateRequest) (*CreateResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	params := req.KDFParams
	if params == (cryptox.KDFParams{}) {
		params = cryptox.DefaultKDFParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if req.UploadDest != "" && o.uploader == nil {
		return nil, fmt.Errorf("%w: upload destination given but no uploader configured", common.ErrConfiguration)
	}

	final, err := ResolveOutputPath(req.Output, now())
	if err != nil {
		return nil, err
	}
	if fi, err := os.Lstat(final); err == nil {
		if fi.IsDir() {
			return nil, fmt.Errorf("%w: output path is a directory: %s", common.ErrConfiguration, final)
		}
		if !req.Force {
			return nil, fmt.Errorf("%w: output file already exists: %s (use --force to overwrite)", common.ErrConfiguration, final)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, common.IOError("stat output", err)
	}

	baseDir := req.BaseDir
	if baseDir == "" {
		if baseDir, err = os.Getwd(); err != nil {
			return nil, common.IOError("get working directory", err)
		}
	}

	ws, err := o.newWorkspace("create")
	if err != nil {
		return nil, err
	}
	defer o.cleanup(ctx, ws)

	o.log.Info(ctx, "creating manifest", "sources", len(req.Sources))
	m, err := manifest.Build(req.Sources, o.codec.Name(), req.Level, common.ToolName, o.toolVersion)
	if err != nil {
		return nil, err
	}
	manifestPath, err := manifest.WriteFile(m, ws.Dir())
	if err != nil {
		return nil, err
	}
	r.to(ctx, StateStagingBuilt)

	o.log.Info(ctx, "archiving sources")
	if err := o.writeTar(ctx, ws, baseDir, req.Sources, manifestPath); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.log.Info(ctx, "compressing payload", "level", req.Level)
	if err := o.compressTar(ws, req.Level); err != nil {
		return nil, err
	}
	r.to(ctx, StatePayloadBuilt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(ws.Path(stagedCompressed))
	if err != nil {
		return nil, common.IOError("read compressed payload", err)
	}

	o.log.Info(ctx, "encrypting payload", "bytes", len(payload))
	data, err := container.Encode(payload, req.Password, params, o.codec.Name())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := filex.EnsureDir(filepath.Dir(final)); err != nil {
		return nil, common.IOError("create output directory", err)
	}
	if err := filex.WriteFileAtomic(final, bytes.NewReader(data), 0o600); err != nil {
		return nil, common.IOError("write archive", err)
	}
	r.to(ctx, StateContainerFinalized)
	o.log.Info(ctx, "archive written", "path", final, "bytes", len(data))

	res := &CreateResult{
		Path:     final,
		Size:     int64(len(data)),
		Manifest: m,
	}

	if req.UploadDest != "" {
		o.log.Info(ctx, "uploading archive", "dest", req.UploadDest)
		if err := o.uploader.Upload(ctx, final, req.UploadDest); err != nil {
			return res, err
		}
		res.Uploaded = true
		r.to(ctx, StateUploaded)
	}

	return res, nil
}

func (o *Orchestrator) writeTar(ctx context.Context, ws *filex.Workspace, baseDir string, sources []string, manifestPath string) error {
	f, err := ws.Create(stagedTar)
	if err != nil {
		return common.IOError("create staged tar", err)
	}

	err = archive.Build(ctx, f, baseDir, sources, archive.Extra{Path: manifestPath, Name: common.ManifestName})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = common.IOError("close staged tar", cerr)
	}
	return err
}

func (o *Orchestrator) compressTar(ws *filex.Workspace, level int) error {
	src, err := os.Open(ws.Path(stagedTar))
	if err != nil {
		return common.IOError("open staged tar", err)
	}
	defer src.Close()

	dst, err := ws.Create(stagedCompressed)
	if err != nil {
		return common.IOError("create staged payload", err)
	}

	err = o.codec.Compress(dst, src, level)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = common.IOError("close staged payload", cerr)
	}
	return err
}
