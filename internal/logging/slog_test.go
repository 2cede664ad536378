package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := NewTextLogger(&buf, true)
	ctx := context.Background()

	log.Debug(ctx, "staging", "state", "staging_built")
	log.Info(ctx, "archive written", "bytes", 53)
	log.Warn(ctx, "history disabled")
	log.Error(ctx, "upload failed", "attempt", 3)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "state=staging_built",
		"level=INFO", `msg="archive written"`, "bytes=53",
		"level=WARN",
		"level=ERROR", "attempt=3",
	} {
		assert.Contains(t, out, want)
	}
}

func TestTextLogger_VerboseControlsDebug(t *testing.T) {
	ctx := context.Background()

	var quiet bytes.Buffer
	NewTextLogger(&quiet, false).Debug(ctx, "hidden")
	assert.Empty(t, quiet.String())

	var loud bytes.Buffer
	NewTextLogger(&loud, true).Debug(ctx, "shown")
	assert.Contains(t, loud.String(), "msg=shown")
}

func TestTextLogger_With(t *testing.T) {
	var buf bytes.Buffer
	log := NewTextLogger(&buf, false).With("op", "create")
	log.Info(context.Background(), "done", "path", "home.seal")

	assert.Contains(t, buf.String(), "op=create")
	assert.Contains(t, buf.String(), "path=home.seal")
}

func TestTextLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := NewTextLogger(&buf, true)

	log.Info(context.Background(), "oops", "password", "correct-horse", "AccessKeyID", "AKIA123", "bucket", "backups")
	log.With("secret_access_key", "hunter2").Info(context.Background(), "child")

	out := buf.String()
	assert.NotContains(t, out, "correct-horse")
	assert.NotContains(t, out, "AKIA123")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "password="+Redacted)
	assert.Contains(t, out, "bucket=backups")
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.NotPanics(t, func() {
		log.Info(context.Background(), "dropped")
		log.With("a", 1).Error(context.Background(), "dropped")
	})
}
