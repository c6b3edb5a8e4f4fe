package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Sample HDL file names written by WriteHDLTree.
const (
	ROMTemplate = "DualPortROM.vhd"
	Wrapper     = "USBVerifierWrapper.vhd"
	ExtraSource = "Comparator.vhd"
)

// ROMTemplateSource is a minimal dual port ROM with the value markers.
const ROMTemplateSource = `library ieee;
use ieee.std_logic_1164.all;

architecture rtl of DualPortROM is
	type rom_t is array (natural range <>) of std_logic_vector(38 downto 0);
	constant ROM : rom_t := (
	-- Start ROM Values
	"000000000000000000000000000000000000000",
	"000000000000000000000000000000000000000"
	-- End ROM Values
	);
begin
end architecture;
`

// WrapperSource defines a subset of the wrapper generics.
const WrapperSource = `entity USBVerifierWrapper is
	generic(
		EQUALS_OPERATOR_ENABLE => '0',
		STARTS_WITH_OPERATOR_ENABLE => '0',
		WATCHDOG_LIMIT => 0,
		EQUALS_MEMORY_ADDR_LENGTH => 1,
		EQUALS_MEMORY_ADDR_MAX_INDEX => 0,
		EQUALS_MEMORY_ADDR_MAX_COUNT => 0,
		EQUALS_DEVICE_BLENGTH_INDEX => 0,
		EQUALS_DEVICE_BLENGTH_COUNT => 0,
		NOT_CONTAINS_STRING_IINTERFACE_COUNT => 0
	);
end USBVerifierWrapper;
`

// WriteHDLTree writes a small HDL source directory under a temp dir and
// returns its path.
func WriteHDLTree(t testing.TB) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Sources")
	files := map[string]string{
		ROMTemplate:                    ROMTemplateSource,
		Wrapper:                        WrapperSource,
		ExtraSource:                    "entity Comparator is end;\n",
		filepath.Join("sim", "tb.vhd"): "entity tb is end;\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}
