// Package csvimport parses uploaded rosters: student-ID allow-lists and staff
// lists. Input is split naively on newlines and commas; quoted fields with
// embedded commas are not supported.
package csvimport

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

// IssueDateLayout renders staff issue dates as M/D/YY.
const IssueDateLayout = "1/2/06"

// IDSet is an unordered set of student identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given values.
func NewIDSet(values ...string) IDSet {
	set := make(IDSet, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of identifiers.
func (s IDSet) Len() int { return len(s) }

// Sorted returns the identifiers in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// StaffRecord is one row of a staff import.
type StaffRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StaffID   string `json:"staffId"`
	IssueDate string `json:"issueDate"`
}

// SplitRows turns raw text into rows of raw cells, dropping blank lines.
func SplitRows(text string) [][]string {
	lines := strings.Split(text, "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rows = append(rows, strings.Split(line, ","))
	}
	return rows
}

// ParseStudentIDs extracts the student-ID allow-list from CSV text.
func ParseStudentIDs(text string) (IDSet, error) {
	return ParseStudentIDRows(SplitRows(text))
}

// ParseStudentIDRows locates the ID column by header name (falling back to the
// first column) and collects every non-empty value in it. Row 0 counts as data
// when its ID cell looks numeric.
func ParseStudentIDRows(rows [][]string) (IDSet, error) {
	rows = dropBlankRows(rows)
	if len(rows) == 0 {
		return nil, appErrors.ErrCSVEmpty
	}

	headers := normaliseHeaders(rows[0])
	idCol := indexOf(headers, func(h string) bool {
		return strings.Contains(h, "id") || strings.Contains(h, "student") || strings.Contains(h, "number")
	})
	if idCol == -1 {
		idCol = 0
	}

	start := 0
	if !looksNumeric(cellAt(rows[0], idCol)) {
		start = 1
	}

	ids := make(IDSet)
	for _, row := range rows[start:] {
		if len(row) <= idCol {
			continue
		}
		if id := cleanCell(row[idCol]); id != "" {
			ids[id] = struct{}{}
		}
	}

	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrCSVNoValidRows, "no valid student IDs found in csv")
	}
	return ids, nil
}

// ParseStaff reads a staff list from CSV text. now stamps the issue date.
func ParseStaff(text string, now time.Time) ([]StaffRecord, error) {
	return ParseStaffRows(SplitRows(text), now)
}

// ParseStaffRows requires a header row with a name column and an id or staff
// column. Rows missing either value are skipped.
func ParseStaffRows(rows [][]string, now time.Time) ([]StaffRecord, error) {
	rows = dropBlankRows(rows)
	if len(rows) == 0 {
		return nil, appErrors.ErrCSVEmpty
	}

	headers := normaliseHeaders(rows[0])
	nameCol := indexOf(headers, func(h string) bool { return strings.Contains(h, "name") })
	idCol := staffIDColumn(headers, nameCol)
	if nameCol == -1 || idCol == -1 {
		return nil, appErrors.ErrCSVMissingColumns
	}

	issued := now.Format(IssueDateLayout)
	width := nameCol
	if idCol > width {
		width = idCol
	}

	staff := make([]StaffRecord, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) <= width {
			continue
		}
		name, staffID := cleanCell(row[nameCol]), cleanCell(row[idCol])
		if name == "" || staffID == "" {
			continue
		}
		staff = append(staff, StaffRecord{
			ID:        "staff-" + strconv.Itoa(i),
			Name:      name,
			StaffID:   staffID,
			IssueDate: issued,
		})
	}

	if len(staff) == 0 {
		return nil, appErrors.Clone(appErrors.ErrCSVNoValidRows, "no valid staff data found in csv")
	}
	return staff, nil
}

// staffIDColumn prefers a header containing "id", then one containing "staff",
// never reusing the name column ("Staff Name" is a name, not an id).
func staffIDColumn(headers []string, nameCol int) int {
	for _, needle := range []string{"id", "staff"} {
		for i, h := range headers {
			if i != nameCol && strings.Contains(h, needle) {
				return i
			}
		}
	}
	return -1
}

func normaliseHeaders(row []string) []string {
	headers := make([]string, len(row))
	for i, h := range row {
		headers[i] = strings.ToLower(cleanCell(h))
	}
	return headers
}

func cleanCell(raw string) string {
	return strings.TrimSpace(strings.NewReplacer(`"`, "", "'", "").Replace(raw))
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return cleanCell(row[i])
}

func indexOf(headers []string, match func(string) bool) int {
	for i, h := range headers {
		if match(h) {
			return i
		}
	}
	return -1
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		if strings.TrimSpace(strings.Join(row, "")) != "" {
			out = append(out, row)
		}
	}
	return out
}

// looksNumeric mirrors the loose numeric coercion browsers apply to text
// ("" -> 0, hex/octal/binary literals, Infinity). It decides whether the first
// row is data or a header, which is a heuristic.
func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	switch strings.TrimLeft(s, "+-") {
	case "Infinity":
		return true
	case "NaN", "Inf", "inf", "infinity", "nan":
		return false
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			_, err := strconv.ParseUint(s[2:], base, 64)
			return err == nil && !strings.Contains(s, "_")
		}
	}
	if strings.ContainsAny(s, "_xXpP") {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Is(err, strconv.ErrRange)
	}
	return !math.IsNaN(f)
}
