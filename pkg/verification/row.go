package verification

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Bit widths of the memory row fields, in row order.
const (
	PartBits     = 8
	DataBits     = 24
	QuartetBits  = 6
	LevelBits    = 1
	RowWidth     = PartBits + DataBits + QuartetBits + LevelBits
	MinimumDepth = 2
)

// MemoryRow is one fragment of an encoded value.
type MemoryRow struct {
	Part          int
	Level         Level
	Data          uint32
	QuartetEnable uint8
}

// Bits renders the row as its 39-character binary text. The part number is
// written as its magnitude.
func (r MemoryRow) Bits() string {
	part := r.Part
	if part < 0 {
		part = -part
	}
	var b strings.Builder
	b.Grow(RowWidth)
	fmt.Fprintf(&b, "%0*b%0*b%0*b", PartBits, part&0xff, DataBits, r.Data&MaxNumber, QuartetBits, r.QuartetEnable&0x3f)
	b.WriteByte(r.Level.Bit())
	return b.String()
}

func (r MemoryRow) String() string { return r.Bits() }

// quartetMask enables the n lowest nibbles of the data field.
func quartetMask(n int) uint8 {
	n = max(1, min(n, QuartetBits))
	return uint8(1<<n - 1)
}

// Encode converts v into its memory rows.
func (v Value) Encode() []MemoryRow {
	switch v.Format {
	case FormatNumber:
		n, err := strconv.ParseUint(v.Raw, 10, DataBits)
		if err != nil {
			panic(fmt.Sprintf("verification: encode unvalidated number %q: %v", v.Raw, err))
		}
		return []MemoryRow{{Part: v.scalarPart(), Level: v.Level, Data: uint32(n), QuartetEnable: quartetMask(QuartetBits)}}
	case FormatHex:
		n, err := strconv.ParseUint(v.Raw, 16, DataBits)
		if err != nil {
			panic(fmt.Sprintf("verification: encode unvalidated hex %q: %v", v.Raw, err))
		}
		return []MemoryRow{{Part: v.scalarPart(), Level: v.Level, Data: uint32(n), QuartetEnable: quartetMask(len(v.Raw))}}
	case FormatString:
		return v.encodeString()
	default:
		panic(fmt.Sprintf("verification: unsupported format %v", v.Format))
	}
}

func (v Value) scalarPart() int {
	if v.Operator == EndsWith {
		return -1
	}
	return 0
}

func (v Value) encodeString() []MemoryRow {
	chunks := v.MemoryUsage()
	rows := make([]MemoryRow, 0, chunks)
	part := 0
	if v.Operator == EndsWith {
		part = -(chunks - 1)
	}
	for start := 0; start < len(v.Raw); start += ChunkSize {
		chunk := v.Raw[start:min(start+ChunkSize, len(v.Raw))]
		var data uint32
		for i := 0; i < len(chunk); i++ {
			data = data<<8 | uint32(chunk[i])
		}
		rows = append(rows, MemoryRow{
			Part:          part,
			Level:         v.Level,
			Data:          data,
			QuartetEnable: quartetMask(2 * len(chunk)),
		})
		part++
	}
	return rows
}

// SortRows orders rows by part number, mandatory before optional within a
// part. Rows that tie keep their input order.
func SortRows(rows []MemoryRow) []MemoryRow {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b MemoryRow) int {
		if a.Part != b.Part {
			return a.Part - b.Part
		}
		return int(b.Level.Bit()) - int(a.Level.Bit())
	})
	return out
}

// GenerateRows orders rows and renders them as bit strings.
func GenerateRows(rows []MemoryRow) []string {
	sorted := SortRows(rows)
	out := make([]string, len(sorted))
	for i, r := range sorted {
		out[i] = r.Bits()
	}
	return out
}

// PadRows duplicates a lone row so the memory holds at least MinimumDepth rows.
func PadRows(rows []string) []string {
	if len(rows) == 1 {
		return []string{rows[0], rows[0]}
	}
	return rows
}
