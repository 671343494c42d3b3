package builder

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/teranos/regalsync/errors"
)

// Concordance column names
const (
	ColumnURLID     = "URL_ID"
	ColumnHBZID     = "HBZID"
	ColumnEdoweb3ID = "EDOWEB3_ID"
)

// Concordance is a crosswalk from legacy ids to catalog identifiers, read
// from a ';'-separated table whose header line starts with '^'. Lines
// starting with '#' are comments.
type Concordance struct {
	rows map[string]map[string]string
}

// LoadConcordance reads a concordance file
func LoadConcordance(path string) (*Concordance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open concordance %s", path)
	}
	defer f.Close()

	c, err := ParseConcordance(f)
	if err != nil {
		return nil, errors.Wrapf(err, "concordance %s", path)
	}
	return c, nil
}

// ParseConcordance reads a concordance table from r
func ParseConcordance(r io.Reader) (*Concordance, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var header []string
	c := &Concordance{rows: make(map[string]map[string]string)}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "malformed concordance line")
		}
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		if strings.HasPrefix(record[0], "^") {
			header = make([]string, len(record))
			for i, col := range record {
				header[i] = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(col, "^")))
			}
			continue
		}
		if header == nil {
			return nil, errors.New("concordance row before '^' header line")
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		if key := row[ColumnURLID]; key != "" {
			c.rows[key] = row
		}
	}

	if header == nil {
		return nil, errors.New("concordance has no '^' header line")
	}
	return c, nil
}

// Lookup returns the value of column for the row keyed by urlID
func (c *Concordance) Lookup(urlID, column string) (string, bool) {
	if c == nil {
		return "", false
	}
	row, ok := c.rows[urlID]
	if !ok {
		return "", false
	}
	v, ok := row[strings.ToUpper(column)]
	return v, ok && v != ""
}

// Len returns the number of keyed rows
func (c *Concordance) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rows)
}
