package verification

import (
	"testing"

	"usbverifier/testutil"
)

// The codec is consumed by external tooling and depends on the standard library only.
func TestStandardLibraryOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStandardImport, "pkg/verification must only import the standard library")
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "public package must not reach into internal/")
}
