package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Show(ctx context.Context, args []string) error
	Reveal(ctx context.Context, args []string) error
	Hide(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
	Unset(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Protect(ctx context.Context, args []string) error
	Startup(ctx context.Context, args []string) error
	Pin(ctx context.Context, args []string) error
	Schema(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
	VCard(ctx context.Context, args []string) error
	Upi(ctx context.Context, args []string) error
	Photo(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Reset(ctx context.Context, args []string) error
	describe(ctx context.Context, err error) string
}

const helpText = `Available commands:
  show                         list fields, locked values hidden
  reveal <key|section>         show locked values (passkey)
  hide                         forget revealed values
  set <key> <value>            change one field
  unset <key>                  clear one field
  edit                         change several fields (key=value lines)
  lock section|field <id>      require the passkey to reveal
  unlock section|field <id>    remove a lock (passkey)
  protect on|off|status        encrypt the profile under a passkey
  startup on|off               ask for the passkey on every start
  pin [key...]                 show or set pinned fields
  schema [subcommand]          show or edit sections and fields
  export <file> [s3]           write a password-protected export
  import <file>|s3:<name>      restore an export
  vcard [<png file>]           print the QR payload, optionally as PNG
  upi <image>|clear            set the UPI QR image
  photo <image>|clear          set the profile photo
  sync [status|clear]          push queued changes now
  reset                        erase the whole profile
  exit | quit                  leave the program`

// runREPL starts a simple read–eval–print loop for the myid CLI.
//
// It reads a line from the provided reader, parses the first token as the
// command and dispatches the remaining tokens to methods on 'a'. Unknown
// commands are reported back to the user. The loop exits on EOF or
// when the user types "exit" or "quit". Commands that prompt for more input
// read from the same reader. A failing command prints one line
// and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("myid %s> ", statusFn()))
		line, readErr := reader.ReadString('\n')
		if readErr != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "show", "ls":
			err = a.Show(ctx, args)
		case "reveal":
			err = a.Reveal(ctx, args)
		case "hide":
			err = a.Hide(ctx, args)
		case "set":
			err = a.Set(ctx, args)
		case "unset":
			err = a.Unset(ctx, args)
		case "edit":
			err = a.Edit(ctx, args)
		case "lock":
			err = a.Lock(ctx, args)
		case "unlock":
			err = a.Unlock(ctx, args)
		case "protect":
			err = a.Protect(ctx, args)
		case "startup":
			err = a.Startup(ctx, args)
		case "pin":
			err = a.Pin(ctx, args)
		case "schema":
			err = a.Schema(ctx, args)
		case "export":
			err = a.Export(ctx, args)
		case "import":
			err = a.Import(ctx, args)
		case "vcard", "qr":
			err = a.VCard(ctx, args)
		case "upi":
			err = a.Upi(ctx, args)
		case "photo":
			err = a.Photo(ctx, args)
		case "sync":
			err = a.Sync(ctx, args)
		case "reset":
			err = a.Reset(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn(a.describe(ctx, err))
		}
	}
}
