package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Profiles(ctx context.Context) error
	ProfileAdd(ctx context.Context) error
	ProfileUse(ctx context.Context, name string) error
	ProfileRemove(ctx context.Context, name string) error
	Env(ctx context.Context) error
	Use(ctx context.Context, what, name string) error
	Ls(ctx context.Context, kind string) error
	Sql(ctx context.Context, statement string) error
	Stream(ctx context.Context, statement string) error
	History(ctx context.Context) error
	Reload(ctx context.Context) error
}

// runREPL reads a line from the scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Commands:
//
//	help                       — show available commands
//	profiles                   — list stored profiles
//	profile add                — add a profile (interactive)
//	profile use <name>         — switch to a stored profile
//	profile remove <name>      — remove a stored profile
//	env                        — show session state and environment
//	use db|cluster|schema <n>  — switch database, cluster or schema
//	ls [kind]                  — list catalog objects
//	sql <statement>            — run a statement and print the result
//	stream <statement>         — stream a statement through a cursor
//	history                    — show recent statements
//	reload                     — re-run environment discovery
//	exit | quit                — leave the program
//
// Errors returned by command handlers are printed here so the loop stays
// focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("mz %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error

		switch cmd {
		case "help":
			printlnFn("Available commands: profiles, profile add|use|remove, env, use, ls, sql, stream, history, reload, exit")

		case "profiles":
			err = a.Profiles(ctx)

		case "profile":
			switch {
			case len(args) >= 1 && args[0] == "add":
				err = a.ProfileAdd(ctx)
			case len(args) >= 2 && args[0] == "use":
				err = a.ProfileUse(ctx, args[1])
			case len(args) >= 2 && args[0] == "remove":
				err = a.ProfileRemove(ctx, args[1])
			default:
				printlnFn("Usage: profile add | profile use <name> | profile remove <name>")
			}

		case "env":
			err = a.Env(ctx)

		case "use":
			if len(args) < 2 {
				printlnFn("Usage: use db|cluster|schema <name>")
				continue
			}
			err = a.Use(ctx, args[0], args[1])

		case "ls":
			kind := ""
			if len(args) > 0 {
				kind = args[0]
			}
			err = a.Ls(ctx, kind)

		case "sql":
			if len(args) == 0 {
				printlnFn("Usage: sql <statement>")
				continue
			}
			err = a.Sql(ctx, strings.Join(args, " "))

		case "stream":
			if len(args) == 0 {
				printlnFn("Usage: stream <statement>")
				continue
			}
			err = a.Stream(ctx, strings.Join(args, " "))

		case "history":
			err = a.History(ctx)

		case "reload":
			err = a.Reload(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn(err.Error())
		}
	}
}
