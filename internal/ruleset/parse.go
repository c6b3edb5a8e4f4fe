// Package ruleset reads verification rules from text rule files and YAML
// documents and applies them to a registry set.
package ruleset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"usbverifier/pkg/verification"
)

// CommentPrefix starts a comment line in a rule file.
const CommentPrefix = "#"

var (
	ErrSyntax         = errors.New("rule syntax error")
	ErrUnknownCommand = errors.New("unknown rule command")
)

// Kind is the action of a rule command.
type Kind int

const (
	KindAdd Kind = iota
	KindRemove
)

func (k Kind) String() string {
	if k == KindRemove {
		return "remove"
	}
	return "add"
}

var kindAliases = map[string]Kind{
	"add": KindAdd, "a": KindAdd,
	"remove": KindRemove, "rm": KindRemove, "r": KindRemove,
}

// ParseKind resolves a command keyword or its short alias.
func ParseKind(s string) (Kind, bool) {
	k, ok := kindAliases[strings.ToLower(s)]
	return k, ok
}

// Clause is one value of an add command.
type Clause struct {
	Operator verification.Operator
	Value    string
	Level    verification.Level
}

// Command is one parsed rule line.
type Command struct {
	Line       int
	Kind       Kind
	Descriptor string
	Field      string
	// Clauses holds the values of an add command.
	Clauses []Clause
	// Value and Operators select what a remove command deletes. No operator
	// means every operator.
	Value     string
	Operators []verification.Operator
}

// LineError locates a failure inside a rule file.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// Parse reads every command of a rule file. Blank lines and lines starting
// with CommentPrefix are skipped. The first malformed line stops parsing.
func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, CommentPrefix) {
			continue
		}
		cmd, err := ParseLine(text)
		if err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		cmd.Line = line
		cmds = append(cmds, cmd)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return cmds, nil
}

// ParseLine parses a single add or remove command.
func ParseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty command", ErrSyntax)
	}
	kind, ok := ParseKind(fields[0])
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	return ParseArgs(kind, fields[1:])
}

// ParseArgs parses the arguments of a command, without its keyword.
//
//	add <descriptor> <field> <operator> <value> [level] [<operator> <value> [level]]...
//	remove <descriptor> <field> <value> [operator]...
func ParseArgs(kind Kind, args []string) (Command, error) {
	if len(args) < 3 {
		return Command{}, fmt.Errorf("%w: %s needs a descriptor, a field and a value", ErrSyntax, kind)
	}
	cmd := Command{Kind: kind, Descriptor: args[0], Field: args[1]}
	if kind == KindRemove {
		cmd.Value = args[2]
		for _, tok := range args[3:] {
			op, err := verification.ParseOperator(tok)
			if err != nil {
				return Command{}, err
			}
			cmd.Operators = append(cmd.Operators, op)
		}
		return cmd, nil
	}
	clauses, err := parseClauses(args[2:])
	if err != nil {
		return Command{}, err
	}
	cmd.Clauses = clauses
	return cmd, nil
}

// parseClauses reads operator/value pairs, each optionally followed by a
// level. A value without a level inherits the previous one.
func parseClauses(toks []string) ([]Clause, error) {
	var out []Clause
	level := verification.Mandatory
	for i := 0; i < len(toks); {
		op, err := verification.ParseOperator(toks[i])
		if err != nil {
			return nil, err
		}
		if i+1 >= len(toks) {
			return nil, fmt.Errorf("%w: missing value after operator %s", ErrSyntax, toks[i])
		}
		c := Clause{Operator: op, Value: toks[i+1], Level: level}
		i += 2
		if i < len(toks) && verification.IsLevel(toks[i]) {
			c.Level, _ = verification.ParseLevel(toks[i])
			i++
		}
		level = c.Level
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: add needs an operator and a value", ErrSyntax)
	}
	return out, nil
}

// String renders the command back in rule file syntax.
func (c Command) String() string {
	parts := []string{c.Kind.String(), c.Descriptor, c.Field}
	if c.Kind == KindRemove {
		parts = append(parts, c.Value)
		for _, op := range c.Operators {
			parts = append(parts, op.String())
		}
		return strings.Join(parts, " ")
	}
	for _, cl := range c.Clauses {
		parts = append(parts, cl.Operator.String(), cl.Value, strings.ToLower(cl.Level.String()))
	}
	return strings.Join(parts, " ")
}
