package selection

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/idcard-api/internal/models"
)

// YearMonth is an arrival-month threshold.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth reads the YYYY-MM form used by month pickers.
func ParseYearMonth(raw string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return YearMonth{}, fmt.Errorf("month must be YYYY-MM: %w", err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// String renders YYYY-MM.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Admits reports whether t falls in or after the threshold month.
func (ym YearMonth) Admits(t time.Time) bool {
	if t.Year() != ym.Year {
		return t.Year() > ym.Year
	}
	return t.Month() >= ym.Month
}

// Filter narrows the visible roster. Empty fields do not filter.
type Filter struct {
	Search    string
	Programme string
	Campus    string
	Since     *YearMonth
}

// ApplyFilters returns the students a session can still pick, in roster order.
// Every criterion is intersected: not committed, in the active CSV allow-list,
// arrived in or after Since (no arrival date always passes), matching
// programme and campus, and containing Search in name, programme, degree,
// idNumber or email.
func ApplyFilters(all []models.Student, s State, f Filter) []models.Student {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	useCSV := s.csvActive && len(s.csvIDs) > 0

	out := make([]models.Student, 0, len(all))
	for _, st := range all {
		if s.IsCommitted(st.ID) {
			continue
		}
		if useCSV {
			if _, ok := s.csvIDs[st.IDNumber]; !ok {
				continue
			}
		}
		if f.Since != nil && st.ArrivalDate != nil && !f.Since.Admits(*st.ArrivalDate) {
			continue
		}
		if f.Programme != "" && st.Programme != f.Programme {
			continue
		}
		if f.Campus != "" && st.Campus != f.Campus {
			continue
		}
		if search != "" && !matchesSearch(st, search) {
			continue
		}
		out = append(out, st)
	}
	return out
}

func matchesSearch(st models.Student, needle string) bool {
	for _, field := range []string{st.Name, st.Programme, st.Degree, st.IDNumber, st.Email} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// IDs extracts student ids in order.
func IDs(students []models.Student) []string {
	out := make([]string, len(students))
	for i, st := range students {
		out[i] = st.ID
	}
	return out
}

// Committed returns the committed students in roster order with expiration
// overrides applied.
func Committed(all []models.Student, s State) []models.Student {
	out := make([]models.Student, 0, len(s.committed))
	for _, st := range all {
		if !s.IsCommitted(st.ID) {
			continue
		}
		if date, ok := s.Override(st.ID); ok {
			st.ExpirationDate = date
		}
		out = append(out, st)
	}
	return out
}

// Facets lists the distinct non-empty programmes and campuses in first-seen order.
func Facets(all []models.Student) (programmes, campuses []string) {
	programmes, campuses = []string{}, []string{}
	seenP, seenC := map[string]bool{}, map[string]bool{}
	for _, st := range all {
		if st.Programme != "" && !seenP[st.Programme] {
			seenP[st.Programme] = true
			programmes = append(programmes, st.Programme)
		}
		if st.Campus != "" && !seenC[st.Campus] {
			seenC[st.Campus] = true
			campuses = append(campuses, st.Campus)
		}
	}
	return programmes, campuses
}
