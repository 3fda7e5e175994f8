package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/myid/internal/client/backup"
	"github.com/dmitrijs2005/myid/internal/client/client"
	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/client/services"
	"github.com/dmitrijs2005/myid/internal/common"
)

// usageError carries the usage line of a command invoked with bad
// arguments.
type usageError string

func (e usageError) Error() string { return "Usage: " + string(e) }

var (
	errLocked         = errors.New("field is locked, reveal it first")
	errNotProtected   = errors.New("protection is off")
	errAlreadyEnabled = errors.New("protection is already on")
	errAborted        = errors.New("aborted")
)

// describe turns a command error into the one line shown to the user.
// Unexpected errors are logged and reported generically.
func (a *App) describe(ctx context.Context, err error) string {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		return usage.Error()
	case errors.Is(err, passkey.ErrCancelled):
		return "Cancelled."
	case errors.Is(err, passkey.ErrVerificationFailed):
		return "Passkey verification failed."
	case errors.Is(err, passkey.ErrNoCredential):
		return "Passkey not found on this device."
	case errors.Is(err, passkey.ErrUnsupported):
		return "No passkey authenticator available."
	case errors.Is(err, common.ErrAuthenticationRequired):
		return "Authentication required."
	case errors.Is(err, backup.ErrDecryptFailed):
		return "Wrong password or corrupted file."
	case errors.Is(err, backup.ErrMalformed):
		return "Not a valid export file."
	case errors.Is(err, backup.ErrWeakParams):
		return "Export parameters are too weak."
	case errors.Is(err, services.ErrSyncDisabled):
		return "Sync is not configured."
	case errors.Is(err, client.ErrUnavailable):
		return "Remote unavailable, changes stay queued."
	case errors.Is(err, client.ErrUnauthorized):
		return "Remote rejected the request."
	case errors.Is(err, common.ErrorNotFound):
		return "Not found."
	case errors.Is(err, models.ErrSectionExists), errors.Is(err, models.ErrSectionNotFound),
		errors.Is(err, models.ErrFieldExists), errors.Is(err, models.ErrFieldNotFound),
		errors.Is(err, common.ErrorInvalidArgument),
		errors.Is(err, errLocked), errors.Is(err, errNotProtected),
		errors.Is(err, errAlreadyEnabled), errors.Is(err, errAborted):
		return "Error: " + err.Error()
	default:
		a.log.Error(ctx, "command failed", "error", err)
		return "Something went wrong, see the log for details."
	}
}
