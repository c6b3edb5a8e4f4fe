package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"usbverifier/internal/allocator"
	"usbverifier/internal/ruleset"
)

const shellPrompt = "usbverifier> "

const shellHints = `Commands:
  add <descriptor> <field> <operator> <value> [level] [<operator> <value> [level]]...   (a)
  remove <descriptor> <field> <value> [operator]...                                     (rm, r)
  import <rules-file>                                                                    (imp, i)
  export [directory]                                                                     (exp, e)
  summary [descriptor [field]]                                                           (sum, s)
  operators                                                                              (ops)
  status                                                                                 (st)
  help                                                                                   (hint, h)
  quit                                                                                   (exit, q)
`

type shellVerb int

const (
	verbAdd shellVerb = iota
	verbRemove
	verbImport
	verbExport
	verbSummary
	verbOperators
	verbStatus
	verbHelp
	verbQuit
)

var shellVerbs = map[string]shellVerb{
	"add": verbAdd, "a": verbAdd,
	"remove": verbRemove, "rm": verbRemove, "r": verbRemove,
	"import": verbImport, "imp": verbImport, "i": verbImport,
	"export": verbExport, "exp": verbExport, "e": verbExport,
	"summary": verbSummary, "sum": verbSummary, "s": verbSummary,
	"operators": verbOperators, "ops": verbOperators,
	"status": verbStatus, "st": verbStatus,
	"help": verbHelp, "hint": verbHelp, "h": verbHelp,
	"quit": verbQuit, "exit": verbQuit, "q": verbQuit,
}

var errQuit = errors.New("quit")

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Edit the rules interactively",
		Long: `Starts a line-oriented shell accepting the add, remove, import, export,
summary and status commands. Errors are printed and the shell keeps running.
Quitting with changes that were never exported offers to export them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sh := &shell{app: a, in: bufio.NewScanner(cmd.InOrStdin()), out: cmd.OutOrStdout()}
			return sh.run(cmd.Context())
		},
	}
}

type shell struct {
	app *app
	in  *bufio.Scanner
	out io.Writer
	// dirty is set by mutations and cleared by a successful export.
	dirty bool
}

func (s *shell) run(ctx context.Context) error {
	fmt.Fprint(s.out, shellHints)
	for {
		fmt.Fprint(s.out, shellPrompt)
		if !s.in.Scan() {
			fmt.Fprintln(s.out)
			return s.in.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.exec(ctx, s.in.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, ok := shellVerbs[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("unknown command %q, type help", fields[0])
	}
	args := fields[1:]
	switch verb {
	case verbAdd, verbRemove:
		kind := ruleset.KindAdd
		if verb == verbRemove {
			kind = ruleset.KindRemove
		}
		if err := s.app.apply(ctx, s.out, kind, args); err != nil {
			return err
		}
		s.dirty = true
	case verbImport:
		if len(args) != 1 {
			return errors.New("import needs exactly one file")
		}
		if err := s.app.importFile(ctx, s.out, args[0]); err != nil {
			return err
		}
		s.dirty = true
	case verbExport:
		if len(args) > 1 {
			return errors.New("export takes at most one directory")
		}
		var dir string
		if len(args) == 1 {
			dir = args[0]
		}
		if err := s.app.export(ctx, s.out, dir, ""); err != nil {
			return err
		}
		s.dirty = false
	case verbSummary:
		if len(args) > 2 {
			return errors.New("summary takes a descriptor and a field at most")
		}
		return s.app.summary(s.out, args)
	case verbOperators:
		renderOperators(s.out, allocator.AllocateAll(s.app.set), allocator.Summarize(s.app.set))
	case verbStatus:
		renderStatus(s.out, s.app.set.Status())
	case verbHelp:
		fmt.Fprint(s.out, shellHints)
	case verbQuit:
		return s.quit(ctx)
	}
	return nil
}

// quit offers to export unexported changes before leaving.
func (s *shell) quit(ctx context.Context) error {
	if !s.dirty {
		return errQuit
	}
	fmt.Fprintln(s.out, "Some verification values are not exported (an export may replace previous files)")
	for {
		fmt.Fprint(s.out, "Export them now? [y/n] ")
		if !s.in.Scan() {
			return errQuit
		}
		switch strings.ToLower(strings.TrimSpace(s.in.Text())) {
		case "y", "yes":
			fmt.Fprintf(s.out, "Export directory (empty for %s): ", s.app.cfg.Export.Dir)
			var dir string
			if s.in.Scan() {
				dir = strings.TrimSpace(s.in.Text())
			}
			if err := s.app.export(ctx, s.out, dir, ""); err != nil {
				return err
			}
			return errQuit
		case "n", "no":
			return errQuit
		default:
			fmt.Fprintln(s.out, "please answer y or n")
		}
	}
}
