// Command rules-check validates verification rule files without touching a
// rule store, for use in CI before an export.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"usbverifier/internal/allocator"
	"usbverifier/internal/registry"
	"usbverifier/internal/ruleset"
)

var exitFunc = os.Exit

// report is the outcome of one checked file.
type report struct {
	Path    string
	Values  int
	Configs []allocator.Config
	Summary allocator.Summary
}

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rules-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var maxDepth int
	var verbose bool
	fs.IntVar(&maxDepth, "max-depth", 0, "fail when an operator memory needs more rows (0 disables)")
	fs.BoolVar(&verbose, "v", false, "print the memory layout of every file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: rules-check [-max-depth n] [-v] <rules-file>...")
		return 2
	}

	var failed bool
	values := 0
	for _, path := range fs.Args() {
		rep, err := run(path, maxDepth)
		if err != nil {
			failed = true
			if _, writeErr := fmt.Fprintf(stderr, "%s: %v\n", path, err); writeErr != nil {
				return 1
			}
			continue
		}
		values += rep.Values
		if verbose {
			printReport(stdout, rep)
		}
	}
	if failed {
		fmt.Fprintln(stderr, "Rule validation failed.")
		return 1
	}
	if _, writeErr := fmt.Fprintf(stdout, "Rule validation passed: %d file(s), %d value(s).\n", fs.NArg(), values); writeErr != nil {
		return 1
	}
	return 0
}

func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("empty path")
	}
	clean := filepath.Clean(p)
	info, err := os.Stat(clean)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", clean)
	}
	return clean, nil
}

// run imports the rule file into an empty rule set and checks the resulting
// operator memories against maxDepth.
func run(path string, maxDepth int) (report, error) {
	safePath, err := validatePath(path)
	if err != nil {
		return report{}, err
	}
	set := registry.NewSet()
	if _, err := ruleset.ImportFile(set, safePath); err != nil {
		return report{}, err
	}
	rep := report{
		Path:    safePath,
		Values:  set.Len(),
		Configs: allocator.AllocateAll(set),
		Summary: allocator.Summarize(set),
	}
	if rep.Values == 0 {
		return rep, errors.New("no verification values")
	}
	if maxDepth > 0 {
		for _, cfg := range rep.Configs {
			if cfg.Total > maxDepth {
				return rep, fmt.Errorf("%s memory needs %d rows, limit is %d", cfg.Operator.ReadableName(), cfg.Total, maxDepth)
			}
		}
	}
	return rep, nil
}

func printReport(w io.Writer, rep report) {
	fmt.Fprintf(w, "%s: %d value(s), %d operator(s), watchdog %d cycles\n",
		rep.Path, rep.Values, rep.Summary.InUse(), rep.Summary.WatchdogLimit)
	for _, cfg := range rep.Configs {
		if !cfg.Enabled() {
			continue
		}
		fmt.Fprintf(w, "  %-14s rows=%d address_bits=%d\n", cfg.Operator.ReadableName(), cfg.Total, cfg.AddressWidth)
	}
}
