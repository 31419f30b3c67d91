// Package report decodes the tab-separated payloads App Store Connect
// serves for sales and analytics reports. It performs no I/O.
package report

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// Row maps a column header to its cell value for one report line.
type Row map[string]string

// Decode accepts raw report bytes, decompressing them when they carry
// the gzip magic prefix, and parses the result into rows.
func Decode(raw []byte) ([]Row, error) {
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("open gzip report: %w", err)
		}
		defer zr.Close()

		text, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress report: %w", err)
		}
		return DecodeText(string(text)), nil
	}
	return DecodeText(string(raw)), nil
}

// DecodeText parses tab-separated report text. The first line is the
// header; each further non-blank line is zipped against it. Missing
// trailing cells resolve to the empty string. Header-only or empty
// input yields an empty slice, which callers treat as a report with
// nothing to say rather than a failure.
func DecodeText(text string) []Row {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return []Row{}
	}

	header := strings.Split(lines[0], "\t")
	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(cells) {
				row[strings.TrimSpace(name)] = cells[i]
			} else {
				row[strings.TrimSpace(name)] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}
