package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/warmpath/backend/internal/contacts"
)

// ErrInvalidCSV is returned when an upload cannot be read as CSV.
var ErrInvalidCSV = eris.New("Invalid CSV format.")

// Header aliases in priority order. Matching is case-insensitive and ignores
// surrounding and repeated whitespace.
var (
	nameHeaders    = []string{"name", "full name", "fullname"}
	companyHeaders = []string{"company", "organization"}
	roleHeaders    = []string{"role", "title"}
)

// columns holds, per field, the matching header indexes in alias order.
type columns struct {
	name, company, role []int
}

func resolveColumns(header []string) columns {
	index := make(map[string][]int, len(header))
	for i, h := range header {
		key := contacts.Normalize(strings.TrimPrefix(h, "\ufeff"))
		index[key] = append(index[key], i)
	}
	pick := func(aliases []string) []int {
		var out []int
		for _, a := range aliases {
			out = append(out, index[a]...)
		}
		return out
	}
	return columns{
		name:    pick(nameHeaders),
		company: pick(companyHeaders),
		role:    pick(roleHeaders),
	}
}

// first returns the first non-empty cell among idx.
func first(record []string, idx []int) string {
	for _, i := range idx {
		if i < len(record) {
			if v := strings.TrimSpace(record[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

// ParseCSV reads a header row followed by contact records and returns the rows
// that carry a name, a company and a role. Other rows are dropped silently.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidCSV, "read header: %v", err)
	}
	cols := resolveColumns(header)

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidCSV, "read record: %v", err)
		}

		row := Row{
			Name:    first(record, cols.name),
			Company: first(record, cols.company),
			Role:    first(record, cols.role),
		}
		if row.Name == "" || row.Company == "" || row.Role == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
