package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/client"
	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatus(t *testing.T) {
	h := newHarness(t, "")
	assert.Equal(t, "(open disabled)", h.app.getStatus())

	h.app.setMode(ModeOnline)
	assert.Equal(t, "(open online)", h.app.getStatus())

	h.must(h.app.Protect, "on")
	assert.Equal(t, "(protected online)", h.app.getStatus())
}

func TestRoot_RunsUntilQuit(t *testing.T) {
	silencePrintln(t)
	h := newHarness(t, "")
	h.app.config.OnlineCheckInterval = time.Millisecond
	h.app.reader.Reset(strings.NewReader("help\nquit\n"))

	require.NoError(t, h.app.Root(context.Background()))
	assert.Contains(t, h.out.String(), "Welcome to myid")
}

func TestStart_StartupLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "")
	h.must(h.app.Set, models.KeyFirstName, "Ada")
	h.must(h.app.Protect, "on")

	require.ErrorIs(t, h.run(h.app.Startup, "maybe"), usageError("startup on|off"))
	h.must(h.app.Startup, "on")

	// a restarted app asks for the passkey before anything else
	restarted := h.build(strings.NewReader(""))
	require.NoError(t, restarted.Start(ctx))
	assert.Contains(t, h.out.String(), "This profile is locked")

	h.setPIN("0000")
	restarted = h.build(strings.NewReader(""))
	err := restarted.Start(ctx)
	require.ErrorIs(t, err, passkey.ErrVerificationFailed)

	silencePrintln(t)
	require.ErrorIs(t, restarted.Root(ctx), passkey.ErrVerificationFailed)
	assert.Contains(t, h.out.String(), "Passkey verification failed.")
}

func TestStart_StartupLockNeedsProtection(t *testing.T) {
	h := newHarness(t, "")
	err := h.run(h.app.Startup, "on")
	require.ErrorIs(t, err, errNotProtected)

	h.must(h.app.Startup, "off")
}

func TestSync_Command(t *testing.T) {
	h := newHarness(t, "")

	h.must(h.app.Set, models.KeyEmail, "ada@example.com")
	out := h.must(h.app.Sync, "status")
	assert.Contains(t, out, "Pending changes: 1")

	out = h.must(h.app.Sync)
	assert.Contains(t, out, "Sent 1, failed 0, abandoned 0.")
	assert.Equal(t, ModeOnline, h.app.mode())
	require.Len(t, h.remote.upserts, 1)
	assert.Equal(t, "ada@example.com", h.remote.upserts[0].Fields[models.KeyEmail])

	h.must(h.app.Set, models.KeyEmail, "ada@lovelace.dev")
	h.remote.pingErr = client.ErrUnavailable
	err := h.run(h.app.Sync)
	require.ErrorIs(t, err, client.ErrUnavailable)
	assert.Equal(t, "Remote unavailable, changes stay queued.", h.app.describe(context.Background(), err))

	h.must(h.app.Sync, "clear")
	assert.Contains(t, h.must(h.app.Sync, "status"), "Pending changes: 0")

	require.ErrorAs(t, h.run(h.app.Sync, "later"), new(usageError))
}
