package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/passkey"
)

// dropCredential deletes a credential the profile no longer references.
func (a *App) dropCredential(ctx context.Context, ref passkey.Ref) {
	if a.creds == nil || ref == "" {
		return
	}
	if err := a.creds.Delete(ctx, ref); err != nil {
		a.log.Warn(ctx, "failed to delete passkey", "credential", ref, "error", err)
	}
}

// Protect switches passkey protection on or off, or prints its state.
func (a *App) Protect(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "status" {
		return a.protectionStatus(ctx)
	}
	switch args[0] {
	case "on":
		return a.enableProtection(ctx)
	case "off":
		return a.disableProtection(ctx)
	default:
		return usageError("protect on|off|status")
	}
}

func (a *App) protectionStatus(ctx context.Context) error {
	if !a.isProtected(ctx) {
		fmt.Fprintln(a.out, "Protection: off")
		return nil
	}
	ref, err := a.store.CredentialRef(ctx)
	if err != nil {
		return err
	}
	startup, err := a.store.StartupRequired(ctx)
	if err != nil {
		return err
	}
	locks := a.locks.Snapshot()
	fmt.Fprintf(a.out, "Protection: on (passkey %s)\n", ref)
	fmt.Fprintf(a.out, "Startup lock: %t\n", startup)
	fmt.Fprintf(a.out, "Locked sections: %s\n", strings.Join(locks.Sections, ", "))
	fmt.Fprintf(a.out, "Locked fields: %s\n", strings.Join(locks.Fields, ", "))
	return nil
}

func (a *App) enableProtection(ctx context.Context) error {
	if a.isProtected(ctx) {
		return errAlreadyEnabled
	}

	values, err := a.loadAll(ctx)
	if err != nil {
		return err
	}
	name := models.FullName(values)
	if name == "" {
		name = "myid"
	}

	fmt.Fprintln(a.out, "Creating a passkey for this profile...")
	ref, err := a.gateway.CreateCredential(ctx, name)
	if err != nil {
		return err
	}
	if err := a.store.EnableProtection(ctx, ref); err != nil {
		a.dropCredential(ctx, ref)
		return err
	}

	a.forgetAll()
	fmt.Fprintln(a.out, "Protection enabled. Your profile is now encrypted on this device.")
	return nil
}

func (a *App) disableProtection(ctx context.Context) error {
	if !a.isProtected(ctx) {
		fmt.Fprintln(a.out, "Protection is already off.")
		return nil
	}

	proof, err := a.authenticate(ctx)
	if err != nil {
		return err
	}
	if err := a.store.DisableProtection(ctx, proof); err != nil {
		return err
	}
	if err := a.locks.Load(ctx); err != nil {
		return err
	}
	a.dropCredential(ctx, proof.Ref())

	a.forgetAll()
	fmt.Fprintln(a.out, "Protection disabled. Your profile is stored unencrypted.")
	return nil
}

// Startup turns the startup lock on or off.
func (a *App) Startup(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return usageError("startup on|off")
	}
	on := args[0] == "on"
	if on && !a.isProtected(ctx) {
		return fmt.Errorf("%w: the startup lock needs passkey protection", errNotProtected)
	}
	if err := a.store.SetStartupRequired(ctx, on); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Startup lock: %s\n", args[0])
	return nil
}

// Reset erases the profile, its locks, its passkey and the sync queue
// after an explicit confirmation.
func (a *App) Reset(ctx context.Context, _ []string) error {
	answer, err := GetSimpleText(a.reader, "Type 'erase' to delete the whole profile", a.out)
	if err != nil || answer != "erase" {
		return errAborted
	}

	ref, err := a.store.CredentialRef(ctx)
	if err != nil {
		return err
	}

	// The remote delete is queued while the profile id still exists.
	if err := a.sync.Clear(ctx); err != nil {
		return err
	}
	if a.config.SyncEnabled() {
		if err := a.sync.QueueDelete(ctx); err != nil {
			a.log.Warn(ctx, "failed to queue remote delete", "error", err)
		}
	}

	if err := a.store.ClearAll(ctx); err != nil {
		return err
	}
	if err := a.locks.Load(ctx); err != nil {
		return err
	}
	a.dropCredential(ctx, ref)

	a.forgetAll()
	if err := a.refreshSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile erased.")
	return nil
}
