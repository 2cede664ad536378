package pipeline

import (
	"context"

	"github.com/dmitrijs2005/sealback/internal/logging"
)

// State is a step of a Create or Restore run.
//
// For Create: StagingBuilt means the manifest is staged, PayloadBuilt that
// the compressed tar exists, ContainerFinalized that the archive was renamed
// into place, Uploaded that the optional upload succeeded.
//
// For Restore: StagingBuilt means the payload was decrypted into the
// workspace, PayloadBuilt that it was decompressed and its manifest
// validated, ContainerFinalized that extraction finished.
type State int

const (
	StateInit State = iota
	StateStagingBuilt
	StatePayloadBuilt
	StateContainerFinalized
	StateUploaded
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStagingBuilt:
		return "staging_built"
	case StatePayloadBuilt:
		return "payload_built"
	case StateContainerFinalized:
		return "container_finalized"
	case StateUploaded:
		return "uploaded"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateDone || s == StateFailed
}

type run struct {
	state  State
	log    logging.Logger
	notify func(State)
}

func newRun(log logging.Logger, notify func(State)) *run {
	r := &run{state: StateInit, log: log, notify: notify}
	if notify != nil {
		notify(StateInit)
	}
	return r
}

func (r *run) to(ctx context.Context, s State) {
	if r.state.terminal() {
		return
	}
	r.log.Debug(ctx, "pipeline state", "from", r.state.String(), "to", s.String())
	r.state = s
	if r.notify != nil {
		r.notify(s)
	}
}

// fail moves the run to StateFailed and returns err unchanged.
func (r *run) fail(ctx context.Context, err error) error {
	if err != nil {
		r.to(ctx, StateFailed)
	}
	return err
}
