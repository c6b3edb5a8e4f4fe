package patcher

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"usbverifier/pkg/verification"
)

// ErrMarkerNotFound reports a memory template without the ROM value markers.
var ErrMarkerNotFound = errors.New("rom value marker not found")

// Markers delimit the ROM initialization values inside a memory template.
type Markers struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// DefaultMarkers are the comments used by the dual-port ROM template.
var DefaultMarkers = Markers{Start: "-- Start ROM Values", End: "-- End ROM Values"}

const rowIndent = "\t"

// PatchMemory replaces the lines between the ROM markers of the template at
// path with rows. A single row is duplicated to fill the minimum memory depth.
// Without rows the file is left as is. ErrMarkerNotFound is returned, and the
// file left untouched, when either marker is missing.
func PatchMemory(path string, rows []string, m Markers) error {
	if len(rows) == 0 {
		return nil
	}
	return rewriteFile(path, func(r *bufio.Reader, w *bufio.Writer) error {
		lines, err := readLines(r)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		out, err := replaceRows(lines, rows, m)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, line := range out {
			if _, err := w.WriteString(line); err != nil {
				return err
			}
		}
		return nil
	})
}

func replaceRows(lines, rows []string, m Markers) ([]string, error) {
	start := -1
	for i, line := range lines {
		if strings.Contains(line, m.Start) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMarkerNotFound, m.Start)
	}
	end := -1
	for i := start + 1; i < len(lines); i++ {
		if strings.Contains(lines[i], m.End) {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMarkerNotFound, m.End)
	}

	eol := terminator(lines[start])
	rows = verification.PadRows(rows)
	out := make([]string, 0, len(lines)-(end-start-1)+len(rows))
	out = append(out, lines[:start+1]...)
	for i, row := range rows {
		sep := ","
		if i == len(rows)-1 {
			sep = ""
		}
		out = append(out, rowIndent+`"`+row+`"`+sep+eol)
	}
	return append(out, lines[end:]...), nil
}
