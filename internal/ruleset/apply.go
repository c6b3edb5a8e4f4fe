package ruleset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"usbverifier/internal/registry"
)

// Stats counts the effect of applied commands.
type Stats struct {
	Commands int
	Added    int
	Removed  int
}

// Exec runs one command against set. A failing add clause leaves the values
// of the earlier clauses in place; use Apply for all-or-nothing semantics.
func Exec(set *registry.Set, cmd Command) (Stats, error) {
	reg, err := set.Lookup(cmd.Descriptor)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Commands: 1}
	switch cmd.Kind {
	case KindAdd:
		for _, c := range cmd.Clauses {
			if _, err := reg.Add(cmd.Field, c.Value, c.Operator, c.Level); err != nil {
				return st, err
			}
			st.Added++
		}
	case KindRemove:
		n, err := reg.Remove(cmd.Field, cmd.Value, cmd.Operators...)
		if err != nil {
			return st, err
		}
		st.Removed = n
	default:
		return st, fmt.Errorf("%w: %d", ErrUnknownCommand, int(cmd.Kind))
	}
	return st, nil
}

// Apply runs cmds in order. When any command fails every registry is
// restored to its content before the call.
func Apply(set *registry.Set, cmds []Command) (Stats, error) {
	before := set.Snapshot()
	var total Stats
	for _, cmd := range cmds {
		st, err := Exec(set, cmd)
		if err != nil {
			if rerr := set.Restore(before); rerr != nil {
				return Stats{}, fmt.Errorf("restore after failed import: %w", rerr)
			}
			if cmd.Line > 0 {
				err = &LineError{Line: cmd.Line, Err: err}
			}
			return Stats{}, err
		}
		total.Commands += st.Commands
		total.Added += st.Added
		total.Removed += st.Removed
	}
	return total, nil
}

// Import parses a rule file from r and applies it all-or-nothing.
func Import(set *registry.Set, r io.Reader) (Stats, error) {
	cmds, err := Parse(r)
	if err != nil {
		return Stats{}, err
	}
	return Apply(set, cmds)
}

// IsYAML reports whether path names a YAML rule document.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ImportFile imports the rule file at path. YAML documents replace the
// whole rule set; text rule files are applied on top of it.
func ImportFile(set *registry.Set, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()
	if IsYAML(path) {
		n, err := ReadYAML(f, set)
		if err != nil {
			return Stats{}, fmt.Errorf("%s: %w", path, err)
		}
		return Stats{Commands: 1, Added: n}, nil
	}
	st, err := Import(set, f)
	if err != nil {
		return Stats{}, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}
