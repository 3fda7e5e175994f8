package cli

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/dmitrijs2005/myid/internal/client/models"
)

const (
	maskedValue     = "••••••"
	unreadableValue = "(unreadable)"
	emptyValue      = "-"
)

// fieldLocked reports whether key is hidden behind a lock right now.
// Locks are inert while protection is off.
func (a *App) fieldLocked(ctx context.Context, key string, protected bool) bool {
	return protected && a.locks.IsFieldLocked(key, a.currentSchema())
}

// loadAll returns every stored value, locked ones included.
func (a *App) loadAll(ctx context.Context) (map[string]string, error) {
	return a.store.LoadFields(ctx, a.currentSchema(), nil, nil, true)
}

// queueSync hands the new field map to the sync queue. A queueing failure
// never fails the save.
func (a *App) queueSync(ctx context.Context, values map[string]string) {
	if !a.config.SyncEnabled() {
		return
	}
	if err := a.sync.QueueUpsert(ctx, values); err != nil {
		a.log.Warn(ctx, "failed to queue profile sync", "error", err)
	}
}

// Show prints the pinned summary and every field of the schema. Locked
// values are masked unless revealed in this session.
func (a *App) Show(ctx context.Context, _ []string) error {
	schema := a.currentSchema()
	protected := a.isProtected(ctx)
	eff := a.locks.Effective(protected)

	res, err := a.store.LoadFieldsDetailed(ctx, schema, eff.Sections, eff.Fields, false)
	if err != nil {
		return err
	}
	pinned, err := a.store.LoadPinned(ctx)
	if err != nil {
		return err
	}

	display := func(key string) string {
		if v, ok := a.revealedValue(key); ok {
			return v
		}
		if a.fieldLocked(ctx, key, protected) {
			return maskedValue
		}
		if slices.Contains(res.Skipped, key) {
			return unreadableValue
		}
		if v := res.Values[key]; v != "" {
			return v
		}
		return emptyValue
	}

	if name := models.FullName(res.Values); name != "" {
		fmt.Fprintf(a.out, "%s\n", name)
	}
	for _, k := range pinned {
		v := models.PinnedValue(k, res.Values)
		if k != models.FullNameKey {
			v = display(k)
		}
		fmt.Fprintf(a.out, "* %s: %s\n", models.Label(k), v)
	}

	known := make(map[string]struct{})
	for _, sec := range schema.Sections {
		title := sec.Title
		if protected && a.locks.IsSectionLocked(sec.ID) {
			title += " [locked]"
		}
		fmt.Fprintf(a.out, "\n== %s (%s)\n", title, sec.ID)
		for _, f := range sec.Fields {
			known[f.Key] = struct{}{}
			label := f.Label
			if label == "" {
				label = models.Label(f.Key)
			}
			fmt.Fprintf(a.out, "  %-20s %s\n", label+":", display(f.Key))
		}
	}

	var extra []string
	for k := range res.Values {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		fmt.Fprintln(a.out, "\n== Other")
		for _, k := range extra {
			fmt.Fprintf(a.out, "  %-20s %s\n", k+":", display(k))
		}
	}
	return nil
}

// targetKeys resolves a section id or a field key.
func targetKeys(schema models.Schema, target string) ([]string, error) {
	for _, sec := range schema.Sections {
		if sec.ID == target {
			return schema.FieldsOf(target), nil
		}
	}
	if _, ok := schema.Field(target); ok {
		return []string{target}, nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrFieldNotFound, target)
}

// Reveal prints the values of a field or a whole section. Locked values
// need a passkey assertion and then stay visible until hidden or locked
// again.
func (a *App) Reveal(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("reveal <key|section>")
	}
	schema := a.currentSchema()
	keys, err := targetKeys(schema, args[0])
	if err != nil {
		return err
	}

	protected := a.isProtected(ctx)
	locked := slices.ContainsFunc(keys, func(k string) bool { return a.fieldLocked(ctx, k, protected) })
	if locked {
		if _, err := a.authenticate(ctx); err != nil {
			return err
		}
	}

	values, err := a.loadAll(ctx)
	if err != nil {
		return err
	}

	shown := make(map[string]string, len(keys))
	for _, k := range keys {
		shown[k] = values[k]
		v := values[k]
		if v == "" {
			v = emptyValue
		}
		label := models.Label(k)
		if f, ok := schema.Field(k); ok && f.Label != "" {
			label = f.Label
		}
		fmt.Fprintf(a.out, "%s: %s\n", label, v)
	}
	if locked {
		a.remember(shown)
	}
	return nil
}

// Hide forgets every value revealed in this session.
func (a *App) Hide(context.Context, []string) error {
	a.forgetAll()
	fmt.Fprintln(a.out, "Revealed values hidden.")
	return nil
}

// update applies changes to the full field map and saves it. Keys must be
// part of the schema, and locked keys must have been revealed.
func (a *App) update(ctx context.Context, changes map[string]string) error {
	schema := a.currentSchema()
	protected := a.isProtected(ctx)

	for k := range changes {
		if _, ok := schema.Field(k); !ok {
			return fmt.Errorf("%w: %s", models.ErrFieldNotFound, k)
		}
		if _, revealed := a.revealedValue(k); a.fieldLocked(ctx, k, protected) && !revealed {
			return fmt.Errorf("%w: %s", errLocked, k)
		}
	}

	values, err := a.loadAll(ctx)
	if err != nil {
		return err
	}
	for k, v := range changes {
		if v == "" {
			delete(values, k)
		} else {
			values[k] = v
		}
	}
	if err := a.store.SaveFields(ctx, values); err != nil {
		return err
	}

	revealedChanges := make(map[string]string)
	for k, v := range changes {
		if _, ok := a.revealedValue(k); ok {
			revealedChanges[k] = v
		}
	}
	a.remember(revealedChanges)

	if missing := schema.MissingRequired(values); len(missing) > 0 {
		fmt.Fprintf(a.out, "Missing required fields: %s\n", strings.Join(missing, ", "))
	}
	a.queueSync(ctx, values)
	fmt.Fprintln(a.out, "Saved.")
	return nil
}

// Set changes one field. The value is the rest of the line.
func (a *App) Set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("set <key> <value>")
	}
	return a.update(ctx, map[string]string{args[0]: strings.Join(args[1:], " ")})
}

func (a *App) Unset(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("unset <key>")
	}
	return a.update(ctx, map[string]string{args[0]: ""})
}

// Edit reads key=value lines and saves them together.
func (a *App) Edit(ctx context.Context, _ []string) error {
	changes, err := GetFieldValues(a.reader, a.out)
	if err != nil {
		return fmt.Errorf("%w: %v", errAborted, err)
	}
	if len(changes) == 0 {
		fmt.Fprintln(a.out, "Nothing to save.")
		return nil
	}
	return a.update(ctx, changes)
}

// Pin without arguments lists the pinned fields, otherwise it replaces the
// pinned list.
func (a *App) Pin(ctx context.Context, args []string) error {
	if len(args) > 0 {
		if err := a.store.SavePinned(ctx, args); err != nil {
			return err
		}
	}
	pinned, err := a.store.LoadPinned(ctx)
	if err != nil {
		return err
	}
	if len(pinned) == 0 {
		fmt.Fprintln(a.out, "No pinned fields.")
		return nil
	}
	fmt.Fprintf(a.out, "Pinned: %s\n", strings.Join(pinned, ", "))
	return nil
}
