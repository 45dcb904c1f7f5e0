// Package verification supplies the caller details injected into the AI
// instructions: from a CSV file on disk, or parked per call by the
// incoming-call webhook.
package verification

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chadiek/call-relay/internal/instructions"
)

// ErrNoRecords is returned when the CSV has a header but no data rows.
var ErrNoRecords = errors.New("verification: no records")

const (
	colSSN     = "ssnLast4"
	colAccount = "accountLast4"
	colZipcode = "zipcode"
)

// LoadCSV reads the first data row of the CSV at path. The first row is the
// header. Missing columns leave the matching field empty.
func LoadCSV(path string) (instructions.Verification, error) {
	f, err := os.Open(path)
	if err != nil {
		return instructions.Verification{}, fmt.Errorf("verification csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return instructions.Verification{}, fmt.Errorf("verification csv: parsing %s: %w", path, err)
	}
	if len(records) < 2 {
		return instructions.Verification{}, ErrNoRecords
	}

	header, row := records[0], records[1]
	field := func(name string) string {
		for i, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}
	return instructions.Verification{
		SSNLast4:     field(colSSN),
		AccountLast4: field(colAccount),
		Zipcode:      field(colZipcode),
	}, nil
}
