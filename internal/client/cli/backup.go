package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/backup"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
	"github.com/dmitrijs2005/myid/internal/common"
)

// PresignTTL is how long a shared export link stays valid.
const PresignTTL = 15 * time.Minute

const s3Prefix = "s3:"

var errNoSink = errors.New("S3 is not configured")

func (a *App) exportPassword() (string, error) {
	pw, err := getSecret(a.out, "Export password")
	if err != nil {
		return "", fmt.Errorf("%w: %v", errAborted, err)
	}
	defer common.WipeByteArray(pw)

	again, err := getSecret(a.out, "Repeat password")
	if err != nil {
		return "", fmt.Errorf("%w: %v", errAborted, err)
	}
	defer common.WipeByteArray(again)

	if string(pw) != string(again) {
		return "", fmt.Errorf("%w: passwords do not match", errAborted)
	}
	return string(pw), nil
}

// Export writes the whole profile, locked values included, to a password
// protected file. Locked values require a passkey assertion first. With
// "s3" the file is also uploaded and a temporary download link printed.
func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 || (len(args) == 2 && args[1] != "s3") {
		return usageError("export <file> [s3]")
	}
	upload := len(args) == 2
	if upload && a.sink == nil {
		return fmt.Errorf("%w: %v", errAborted, errNoSink)
	}

	var proof passkey.Proof
	if protected := a.isProtected(ctx); protected && !a.locks.Effective(protected).Empty() {
		p, err := a.authenticate(ctx)
		if err != nil {
			return err
		}
		proof = p
	}

	password, err := a.exportPassword()
	if err != nil {
		return err
	}
	data, err := a.backup.Export(ctx, password, proof)
	if err != nil {
		return err
	}

	path := args[0]
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	fmt.Fprintf(a.out, "Exported to %s.\n", path)

	if upload {
		name := filepath.Base(path)
		if err := a.sink.Put(ctx, name, data); err != nil {
			return err
		}
		url, err := a.sink.PresignGet(ctx, name, PresignTTL)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Uploaded. Download link (valid %s):\n%s\n", PresignTTL, url)
	}
	return nil
}

// Import restores an export from a file or, with the s3: prefix, from the
// bucket. Nothing changes unless the whole file is valid.
func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("import <file>|s3:<name>")
	}

	var (
		data []byte
		err  error
	)
	if name, ok := strings.CutPrefix(args[0], s3Prefix); ok {
		if a.sink == nil {
			return fmt.Errorf("%w: %v", errAborted, errNoSink)
		}
		data, err = a.sink.Get(ctx, name)
	} else {
		data, err = os.ReadFile(args[0])
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", common.ErrorNotFound, args[0])
		}
	}
	if err != nil {
		return err
	}

	var password string
	if backup.IsEnvelope(data) {
		pw, err := getSecret(a.out, "Export password")
		if err != nil {
			return fmt.Errorf("%w: %v", errAborted, err)
		}
		password = string(pw)
		common.WipeByteArray(pw)
	}

	report, err := a.backup.Import(ctx, data, password)
	if err != nil {
		return err
	}

	a.forgetAll()
	if err := a.refreshSchema(ctx); err != nil {
		return err
	}
	if values, err := a.loadAll(ctx); err == nil {
		a.queueSync(ctx, values)
	}

	fmt.Fprintf(a.out, "Imported %d fields.\n", report.Fields)
	for _, d := range report.Dropped {
		fmt.Fprintf(a.out, "  skipped %s\n", d)
	}
	return nil
}
