package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const cellSeparator = " | "

// CSVLoader reads tables. The column line and the first HeaderRows data
// rows form a header repeated at the top of every chunk; every other row is
// one unit. Ragged rows are padded to the widest row.
type CSVLoader struct {
	HeaderRows int
}

// Load implements Loader.
func (l CSVLoader) Load(source string, r io.Reader) ([]Document, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var rows [][]string
	width := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, source, err)
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
		width = max(width, len(rec))
	}
	if len(rows) == 0 {
		return nil, nil
	}

	units := make([]string, len(rows))
	for i, rec := range rows {
		units[i] = renderRow(rec, width)
	}

	// A table no longer than its header keeps its rows as plain units so
	// it still produces a chunk.
	header := 1 + l.HeaderRows
	if len(units) <= header {
		header = 0
	}
	return []Document{{
		Source:      source,
		Type:        TypeTable,
		Units:       units,
		Separator:   "\n",
		HeaderUnits: header,
	}}, nil
}

func renderRow(rec []string, width int) string {
	cells := make([]string, width)
	for i := range cells {
		if i < len(rec) {
			cells[i] = strings.TrimSpace(rec[i])
		}
	}
	return strings.Join(cells, cellSeparator)
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
