package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/myid/internal/client/passkey"
)

func (a *App) getStatus() string {
	s := "open"
	if a.isProtected(context.Background()) {
		s = "protected"
	}
	if m := a.mode(); m != "" {
		s = s + " " + string(m)
	}
	return fmt.Sprintf("(%s)", s)
}

// authenticate runs an assertion ceremony for the enrolled credential.
func (a *App) authenticate(ctx context.Context) (passkey.Proof, error) {
	ref, err := a.store.CredentialRef(ctx)
	if err != nil {
		return passkey.Proof{}, err
	}
	if ref == "" {
		return passkey.Proof{}, errNotProtected
	}
	return a.gateway.RequestAssertion(ctx, ref)
}

// Start finishes any interrupted protection switch, loads the lock sets and
// the schema, and enforces the startup lock.
func (a *App) Start(ctx context.Context) error {
	if err := a.store.Recover(ctx); err != nil {
		return fmt.Errorf("recover profile: %w", err)
	}
	if err := a.locks.Load(ctx); err != nil {
		return err
	}
	if err := a.refreshSchema(ctx); err != nil {
		return err
	}

	if !a.isProtected(ctx) {
		return nil
	}
	required, err := a.store.StartupRequired(ctx)
	if err != nil {
		return err
	}
	if required {
		fmt.Fprintln(a.out, "This profile is locked. Confirm with your passkey to continue.")
		if _, err := a.authenticate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Root starts the background workers and runs the REPL until the user
// exits. A failed startup lock ends the session before the REPL.
func (a *App) Root(ctx context.Context) error {
	fmt.Fprintln(a.out, "Welcome to myid (type 'help' for commands)")

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(a.out, a.describe(ctx, err))
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}()
	go func() {
		defer wg.Done()
		a.sync.Run(ctx)
	}()

	runREPL(ctx, a, a.getStatus, a.reader)

	cancel()
	wg.Wait()
	return nil
}
