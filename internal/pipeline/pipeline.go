// Package pipeline sequences the Create and Restore flows: manifest, tar,
// compression, encryption and upload one way; decryption, decompression,
// manifest validation and safe extraction the other.
//
// Every run stages its intermediates in a private workspace that is removed
// on every exit path. Create only ever exposes a complete archive under the
// final name.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/sealback/internal/buildinfo"
	"github.com/dmitrijs2005/sealback/internal/catalog"
	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/compress"
	"github.com/dmitrijs2005/sealback/internal/filex"
	"github.com/dmitrijs2005/sealback/internal/logging"
	"github.com/dmitrijs2005/sealback/internal/upload"
)

var now = time.Now

// Orchestrator runs Create and Restore. It holds no per-run state, so one
// value may serve several independent runs.
type Orchestrator struct {
	log         logging.Logger
	codec       compress.Codec
	uploader    upload.Uploader
	history     catalog.Repository
	toolVersion string

	// OnTransition, if set, is called with every state a run enters.
	OnTransition func(State)
}

// New returns an Orchestrator. uploader and history may be nil; without an
// uploader Create refuses upload destinations, without history nothing is
// recorded.
func New(log logging.Logger, uploader upload.Uploader, history catalog.Repository) *Orchestrator {
	if log == nil {
		log = logging.Discard()
	}
	return &Orchestrator{
		log:         log,
		uploader:    uploader,
		history:     history,
		toolVersion: buildinfo.Version,
	}
}

func (o *Orchestrator) newWorkspace(op string) (*filex.Workspace, error) {
	ws, err := filex.NewWorkspace("sealback-" + op + "-*")
	if err != nil {
		return nil, common.IOError("create workspace", err)
	}
	return ws, nil
}

func (o *Orchestrator) cleanup(ctx context.Context, ws *filex.Workspace) {
	dir := ws.Dir()
	if err := ws.Cleanup(); err != nil {
		o.log.Warn(ctx, "failed to remove workspace", "dir", dir, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, rec catalog.Record) {
	if o.history == nil {
		return
	}
	if _, err := o.history.Add(ctx, rec); err != nil {
		o.log.Warn(ctx, "failed to record history", "error", err)
	}
}

// ResolveOutputPath returns where Create writes its archive:
//   - an existing directory gets backup-YYYYMMDD_HHMMSS.seal inside it;
//   - a name ending in .seal is used as is;
//   - any other name gets .seal appended if its parent directory exists.
func ResolveOutputPath(output string, at time.Time) (string, error) {
	if output == "" {
		output = "."
	}

	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		name := "backup-" + at.Format("20060102_150405") + common.ArchiveSuffix
		return filepath.Join(output, name), nil
	}

	if strings.HasSuffix(filepath.Base(output), common.ArchiveSuffix) {
		return output, nil
	}

	if fi, err := os.Stat(filepath.Dir(output)); err == nil && fi.IsDir() {
		return output + common.ArchiveSuffix, nil
	}

	return "", fmt.Errorf("%w: invalid output path: %s", common.ErrConfiguration, output)
}
