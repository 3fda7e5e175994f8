package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/myid/internal/client/models"
)

const schemaUsage = `schema [addsection <id> <title> | rmsection <id> | rename <id> <title> |
  movesection <id> <index> | addfield <section> <key> [label] | rmfield <key> |
  movefield <key> <section> <index> | reset]`

// Schema prints the layout or applies one edit and saves it.
func (a *App) Schema(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printSchema()
		return nil
	}

	s := a.currentSchema().Clone()
	sub, rest := args[0], args[1:]

	var err error
	switch {
	case sub == "addsection" && len(rest) >= 2:
		err = s.AddSection(models.Section{ID: rest[0], Title: strings.Join(rest[1:], " ")})
	case sub == "rmsection" && len(rest) == 1:
		err = s.RemoveSection(rest[0])
	case sub == "rename" && len(rest) >= 2:
		err = s.RenameSection(rest[0], strings.Join(rest[1:], " "))
	case sub == "movesection" && len(rest) == 2:
		var i int
		if i, err = strconv.Atoi(rest[1]); err != nil {
			return usageError(schemaUsage)
		}
		err = s.MoveSection(rest[0], i)
	case sub == "addfield" && len(rest) >= 2:
		label := strings.Join(rest[2:], " ")
		if label == "" {
			label = models.Label(rest[1])
		}
		err = s.AddField(rest[0], models.Field{Key: rest[1], Label: label})
	case sub == "rmfield" && len(rest) == 1:
		err = s.RemoveField(rest[0])
	case sub == "movefield" && len(rest) == 3:
		var i int
		if i, err = strconv.Atoi(rest[2]); err != nil {
			return usageError(schemaUsage)
		}
		err = s.MoveField(rest[0], rest[1], i)
	case sub == "reset" && len(rest) == 0:
		s = models.DefaultSchema()
	default:
		return usageError(schemaUsage)
	}
	if err != nil {
		return err
	}

	if err := a.store.SaveSchema(ctx, s); err != nil {
		return err
	}
	if err := a.refreshSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Schema saved.")
	return nil
}

func (a *App) printSchema() {
	for i, sec := range a.currentSchema().Sections {
		fmt.Fprintf(a.out, "%d. %s (%s)\n", i, sec.Title, sec.ID)
		for _, f := range sec.Fields {
			req := ""
			if f.Required {
				req = " *"
			}
			fmt.Fprintf(a.out, "     %s: %s%s\n", f.Key, f.Label, req)
		}
	}
}
