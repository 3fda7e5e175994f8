package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/common"
)

// getSecret is an indirection used to facilitate testing.
var getSecret = GetSecret

var errPINMismatch = errors.New("PINs do not match")

// pinVerifier asks for the authenticator PIN on the terminal. A new
// credential needs the PIN twice.
type pinVerifier struct {
	w io.Writer
}

func newPINVerifier() passkey.UserVerifier {
	return pinVerifier{w: os.Stdout}
}

func (v pinVerifier) VerifyUser(ctx context.Context, displayName string, create bool) (string, error) {
	prompt := "Passkey PIN"
	if create {
		prompt = fmt.Sprintf("New passkey PIN for %s (at least %d characters)", displayName, passkey.MinPINLength)
	}

	pin, err := getSecret(v.w, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", passkey.ErrCancelled, err)
	}
	defer common.WipeByteArray(pin)

	if create {
		again, err := getSecret(v.w, "Repeat PIN")
		if err != nil {
			return "", fmt.Errorf("%w: %v", passkey.ErrCancelled, err)
		}
		defer common.WipeByteArray(again)
		if string(again) != string(pin) {
			return "", fmt.Errorf("%w: %v", passkey.ErrVerificationFailed, errPINMismatch)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(pin), nil
}
