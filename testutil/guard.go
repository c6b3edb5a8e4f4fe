// Package testutil holds fixtures and boundary checks shared by tests.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// ModulePath is the import path prefix of this repository.
const ModulePath = "usbverifier"

// ImportRule reports whether an import path breaks a package boundary.
type ImportRule func(importPath string) bool

// AssertNoDirectImports fails t when a non-test file of the package in dir
// imports a path matched by rule. Build constraints are ignored.
func AssertNoDirectImports(t testing.TB, dir string, rule ImportRule, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, rule)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("%s:\n  %s", reason, strings.Join(viols, "\n  "))
	}
}

// InternalImportForbidden matches import paths under an internal/ tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// NonStandardImport matches module-local packages and anything whose first
// path element looks like a host name.
func NonStandardImport(path string) bool {
	if path == ModulePath || strings.HasPrefix(path, ModulePath+"/") {
		return true
	}
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

func directImportViolations(dir string, rule ImportRule) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range f.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fset.Position(spec.Pos()), err)
			}
			if rule(path) {
				viols = append(viols, fmt.Sprintf("%s (%s)", path, filepath.Base(file)))
			}
		}
	}
	slices.Sort(viols)
	return viols, nil
}
