package report

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed columns.yaml
var columnsYAML []byte

// Columns resolves a canonical field name to whichever of its known
// header spellings a given row actually carries. Sales and analytics
// aggregation share one table so a synonym is never defined twice.
type Columns struct {
	Fields       map[string][]string `yaml:"fields"`
	ProductTypes map[string][]string `yaml:"productTypes"`
}

var (
	defaultColumns *Columns
	columnsOnce    sync.Once
)

// DefaultColumns loads the embedded synonym table. The table ships with
// the binary, so a parse failure is a programming error.
func DefaultColumns() *Columns {
	columnsOnce.Do(func() {
		cols, err := ParseColumns(columnsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded column table invalid: %v", err))
		}
		defaultColumns = cols
	})
	return defaultColumns
}

func ParseColumns(raw []byte) (*Columns, error) {
	var cols Columns
	if err := yaml.Unmarshal(raw, &cols); err != nil {
		return nil, fmt.Errorf("parse column table: %w", err)
	}
	if len(cols.Fields) == 0 {
		return nil, fmt.Errorf("column table defines no fields")
	}
	return &cols, nil
}

// Text returns the first non-empty cell among the field's synonyms.
func (c *Columns) Text(row Row, field string) string {
	for _, name := range c.Fields[field] {
		if value, ok := row[name]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// Int parses the field as an integer, defaulting to 0 for missing or
// unparseable cells. Reports occasionally format counts with decimal
// points, so a float fallback is applied before giving up.
func (c *Columns) Int(row Row, field string) int64 {
	raw := c.Text(row, field)
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f)
	}
	return 0
}

// Float parses the field as a decimal, defaulting to 0.
func (c *Columns) Float(row Row, field string) float64 {
	raw := c.Text(row, field)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

// IsFirstDownload reports whether a sales product type identifier
// denotes a first-time download.
func (c *Columns) IsFirstDownload(productType string) bool {
	return containsType(c.ProductTypes["firstDownload"], productType)
}

// IsRedownload reports whether a sales product type identifier denotes
// a redownload.
func (c *Columns) IsRedownload(productType string) bool {
	return containsType(c.ProductTypes["redownload"], productType)
}

func containsType(types []string, candidate string) bool {
	for _, t := range types {
		if t == candidate {
			return true
		}
	}
	return false
}
