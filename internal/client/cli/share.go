package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/myid/internal/client/vcard"
	"github.com/dmitrijs2005/myid/internal/common"
)

// MaxImageSize bounds images stored in the profile.
const MaxImageSize = 2 << 20

// VCard prints the QR payload built from the values visible right now.
// With a file argument the payload is also rendered as a PNG QR code.
func (a *App) VCard(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usageError("vcard [<png file>]")
	}
	protected := a.isProtected(ctx)
	eff := a.locks.Effective(protected)
	values, err := a.store.LoadFields(ctx, a.currentSchema(), eff.Sections, eff.Fields, false)
	if err != nil {
		return err
	}
	a.mu.Lock()
	for k, v := range a.revealed {
		values[k] = v
	}
	a.mu.Unlock()

	payload := vcard.Build(values)
	fmt.Fprintln(a.out, payload)
	if len(args) == 0 {
		return nil
	}

	img, err := vcard.QRCode(payload, vcard.DefaultQRSize)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], img, 0o600); err != nil {
		return fmt.Errorf("write qr code %s: %w", args[0], err)
	}
	fmt.Fprintf(a.out, "QR code written to %s.\n", args[0])
	return nil
}

// imageDataURL reads an image file into a data URL.
func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > MaxImageSize {
		return "", fmt.Errorf("%w: image larger than %d bytes", common.ErrorInvalidArgument, MaxImageSize)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: %s is not an image (%s)", common.ErrorInvalidArgument, path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func describeImage(dataURL string) string {
	if dataURL == "" {
		return "not set"
	}
	head, _, _ := strings.Cut(dataURL, ",")
	return fmt.Sprintf("%s, %d bytes", strings.TrimPrefix(head, "data:"), len(dataURL))
}

// imageCommand shows, replaces or clears one stored image.
func (a *App) imageCommand(ctx context.Context, args []string, usage, name string,
	load func(context.Context) (string, error), save func(context.Context, string) error) error {
	switch {
	case len(args) == 0:
		v, err := load(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %s\n", name, describeImage(v))
		return nil
	case len(args) == 1 && args[0] == "clear":
		if err := save(ctx, ""); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s cleared.\n", name)
		return nil
	case len(args) == 1:
		url, err := imageDataURL(args[0])
		if err != nil {
			return err
		}
		if err := save(ctx, url); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s saved.\n", name)
		return nil
	default:
		return usageError(usage)
	}
}

// Upi manages the UPI QR image. It is encrypted along with the fields.
func (a *App) Upi(ctx context.Context, args []string) error {
	return a.imageCommand(ctx, args, "upi [<image>|clear]", "UPI QR image", a.store.LoadUpiQrImage, a.store.SaveUpiQrImage)
}

// Photo manages the profile photo, which is never encrypted.
func (a *App) Photo(ctx context.Context, args []string) error {
	return a.imageCommand(ctx, args, "photo [<image>|clear]", "Profile photo", a.store.LoadProfileImage, a.store.SaveProfileImage)
}
