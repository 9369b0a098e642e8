package livestatus

import (
	"fmt"
	"strings"
)

// DefaultFieldSeparator is the Livestatus default CSV column separator.
const DefaultFieldSeparator = ";"

// Record is one response row keyed by output column name.
type Record map[string]string

// Parser turns a raw response into records.
type Parser interface {
	Parse(raw string, columns []string) ([]Record, error)
}

// SeparatorParser parses newline separated rows whose fields are split by FieldSeparator.
type SeparatorParser struct {
	FieldSeparator string
}

// NewSeparatorParser returns a parser, defaulting to DefaultFieldSeparator.
func NewSeparatorParser(separator string) *SeparatorParser {
	if separator == "" {
		separator = DefaultFieldSeparator
	}
	return &SeparatorParser{FieldSeparator: separator}
}

// Parse maps each row's fields positionally onto columns. The last column takes the rest
// of the line, so free text such as plugin output may contain the separator.
func (p *SeparatorParser) Parse(raw string, columns []string) ([]Record, error) {
	separator := p.FieldSeparator
	if separator == "" {
		separator = DefaultFieldSeparator
	}

	records := make([]Record, 0)
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.SplitN(line, separator, len(columns))
		if len(fields) != len(columns) {
			return nil, fmt.Errorf("livestatus: row %d has %d fields, expected %d", i+1, len(fields), len(columns))
		}

		record := make(Record, len(columns))
		for j, name := range columns {
			record[name] = fields[j]
		}
		records = append(records, record)
	}
	return records, nil
}
