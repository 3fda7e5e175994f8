package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/myid/internal/client/models"
)

func lockTarget(args []string, usage string) (kind, id string, err error) {
	if len(args) != 2 || (args[0] != "section" && args[0] != "field") {
		return "", "", usageError(usage)
	}
	return args[0], args[1], nil
}

// Lock hides a section or a field behind the passkey. Locking needs no
// ceremony.
func (a *App) Lock(ctx context.Context, args []string) error {
	kind, id, err := lockTarget(args, "lock section|field <id>")
	if err != nil {
		return err
	}
	if !a.isProtected(ctx) {
		return fmt.Errorf("%w: locks need passkey protection", errNotProtected)
	}

	schema := a.currentSchema()
	if kind == "section" {
		if schema.FieldsOf(id) == nil {
			return fmt.Errorf("%w: %s", models.ErrSectionNotFound, id)
		}
		err = a.locks.LockSection(ctx, id)
	} else {
		if _, ok := schema.Field(id); !ok {
			return fmt.Errorf("%w: %s", models.ErrFieldNotFound, id)
		}
		err = a.locks.LockField(ctx, id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Locked %s %s.\n", kind, id)
	return nil
}

// Unlock removes a lock after a passkey assertion.
func (a *App) Unlock(ctx context.Context, args []string) error {
	kind, id, err := lockTarget(args, "unlock section|field <id>")
	if err != nil {
		return err
	}

	proof, err := a.authenticate(ctx)
	if err != nil {
		return err
	}
	if kind == "section" {
		err = a.locks.UnlockSection(ctx, id, proof)
	} else {
		err = a.locks.UnlockField(ctx, id, proof)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Unlocked %s %s.\n", kind, id)
	return nil
}
