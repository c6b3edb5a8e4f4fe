package verification

import (
	"fmt"
	"io"
	"strings"
)

// MemoryFileHeader returns the comment and radix preamble of a .coe file.
func MemoryFileHeader(op Operator, depth int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; Memory Configuration - %s Operator\n", op.ReadableName())
	b.WriteString("; Memory Row Format: Value Part Number (8 bits) - Expected Value (24 bits) - Value Quartet Enable (6 bits) - Mandatory Level (1 bit)\n")
	fmt.Fprintf(&b, "; Memory Format: Depth=%d, Width=%d bits\n", depth, RowWidth)
	b.WriteString("MEMORY_INITIALIZATION_RADIX=2;\n")
	b.WriteString("MEMORY_INITIALIZATION_VECTOR=\n")
	return b.String()
}

// WriteMemoryFile writes the initialization file for one operator memory.
// rows are padded to MinimumDepth and the header depth matches what is written.
func WriteMemoryFile(w io.Writer, op Operator, rows []string) error {
	rows = PadRows(rows)
	if _, err := io.WriteString(w, MemoryFileHeader(op, len(rows))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, strings.Join(rows, ",\n")); err != nil {
		return err
	}
	_, err := io.WriteString(w, ";")
	return err
}
