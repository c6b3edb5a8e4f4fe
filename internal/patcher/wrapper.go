package patcher

import (
	"bufio"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"usbverifier/internal/allocator"
)

// assignToken separates a generic name from its value in the wrapper.
const assignToken = "=> "

// Substitutions maps an assignment key such as "FOO_INDEX => " to the full
// replacement text of its line, without indentation or line terminator.
type Substitutions map[string]string

// Set records key with value, appending sep.
func (s Substitutions) Set(name, value, sep string) {
	key := name + " " + assignToken
	s[key] = key + value + sep
}

// Keys returns the assignment keys in sorted order.
func (s Substitutions) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Report lists the outcome of a wrapper patch.
type Report struct {
	Replaced  []string
	Unmatched []string
}

// PatchWrapper substitutes every assignment line of the wrapper at path whose
// key is in subs. Indentation and line endings are kept and every other line
// is copied unchanged. Keys never found are reported and logged as warnings.
func PatchWrapper(path string, subs Substitutions, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var report Report
	err := rewriteFile(path, func(r *bufio.Reader, w *bufio.Writer) error {
		lines, err := readLines(r)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var out []string
		out, report = substitute(lines, subs)
		for _, line := range out {
			if _, err := w.WriteString(line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	if len(report.Unmatched) > 0 {
		logger.Warn("wrapper keys not found in template",
			zap.String("path", path),
			zap.Int("unmatched", len(report.Unmatched)),
			zap.Strings("keys", report.Unmatched))
	}
	logger.Debug("wrapper patched", zap.String("path", path), zap.Int("replaced", len(report.Replaced)))
	return report, nil
}

func substitute(lines []string, subs Substitutions) ([]string, Report) {
	seen := make(map[string]bool, len(subs))
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = line
		clean := strings.TrimSpace(line)
		idx := strings.Index(clean, assignToken)
		if idx < 0 {
			continue
		}
		key := clean[:idx+len(assignToken)]
		repl, ok := subs[key]
		if !ok {
			continue
		}
		eol := ""
		if strings.HasSuffix(line, "\n") {
			eol = terminator(line)
		}
		out[i] = leadingSpace(line) + repl + eol
		seen[key] = true
	}
	var report Report
	for _, key := range subs.Keys() {
		if seen[key] {
			report.Replaced = append(report.Replaced, key)
		} else {
			report.Unmatched = append(report.Unmatched, key)
		}
	}
	return out, report
}

// Operator enable values written to the wrapper.
const (
	OperatorEnabled  = "'1'"
	OperatorDisabled = "'0'"
)

// BuildSubstitutions computes every wrapper constant from the operator
// layouts and the summary. The count of the last slot of the last layout
// closes the generic map and carries no trailing comma.
func BuildSubstitutions(configs []allocator.Config, summary allocator.Summary) Substitutions {
	subs := Substitutions{}
	for _, st := range summary.Operators {
		enable := OperatorDisabled
		if st.Enabled {
			enable = OperatorEnabled
		}
		subs.Set(st.Operator.HDLName()+"_OPERATOR_ENABLE", enable, ",")
	}
	subs.Set("WATCHDOG_LIMIT", strconv.Itoa(summary.WatchdogLimit), ",")

	for ci, cfg := range configs {
		op := cfg.Operator.String()
		subs.Set(op+"_MEMORY_ADDR_LENGTH", strconv.Itoa(cfg.AddressWidth), ",")
		subs.Set(op+"_MEMORY_ADDR_MAX_INDEX", strconv.Itoa(cfg.MaxIndex), ",")
		subs.Set(op+"_MEMORY_ADDR_MAX_COUNT", strconv.Itoa(cfg.MaxCount), ",")
		for si, slot := range cfg.Slots {
			stem := op + "_" + slot.Key()
			subs.Set(stem+"_INDEX", strconv.Itoa(slot.Index), ",")
			sep := ","
			if ci == len(configs)-1 && si == len(cfg.Slots)-1 {
				sep = ""
			}
			subs.Set(stem+"_COUNT", strconv.Itoa(slot.Count), sep)
		}
	}
	return subs
}
