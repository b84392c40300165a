package commands

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
)

// readRowsFile parses a CSV file with a header line, "-" reads stdin.
func readRowsFile(path string) ([]bulkv1.Row, error) {
	if path == "-" {
		return readRows(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// readRows maps every record onto the header columns. Column names are passed through
// as written, the server normalises them. Blank lines are skipped.
func readRows(r io.Reader) ([]bulkv1.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header line")
	}
	if err != nil {
		return nil, err
	}

	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	var rows []bulkv1.Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(record), len(header))
		}

		row := make(bulkv1.Row, len(header))
		for i, value := range record {
			if header[i] == "" {
				continue
			}
			row[header[i]] = value
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// rowColumns returns the sorted union of the column names used by rows.
func rowColumns(rows []bulkv1.Row) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, row := range rows {
		for name := range row {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				columns = append(columns, name)
			}
		}
	}
	slices.Sort(columns)
	return columns
}
