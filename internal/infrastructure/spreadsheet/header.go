package spreadsheet

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

var knownColumns = map[string]struct{}{
	domain.ColEmail:            {},
	domain.ColFirstName:        {},
	domain.ColLastName:         {},
	domain.ColPhone:            {},
	domain.ColCourse:           {},
	domain.ColSpecialization:   {},
	domain.ColEnrollmentNumber: {},
	domain.ColStartYear:        {},
	domain.ColEndYear:          {},
	domain.ColSemester:         {},
	domain.ColCGPA:             {},
	domain.ColSGPA:             {},
	domain.ColPercentage:       {},
	domain.ColMarks:            {},
	domain.ColRemarks:          {},
}

var headerAliases = map[string]string{
	"email_address":     domain.ColEmail,
	"e_mail":            domain.ColEmail,
	"mail":              domain.ColEmail,
	"firstname":         domain.ColFirstName,
	"given_name":        domain.ColFirstName,
	"lastname":          domain.ColLastName,
	"surname":           domain.ColLastName,
	"family_name":       domain.ColLastName,
	"phone_number":      domain.ColPhone,
	"mobile":            domain.ColPhone,
	"mobile_number":     domain.ColPhone,
	"course_name":       domain.ColCourse,
	"course_id":         domain.ColCourse,
	"program":           domain.ColCourse,
	"programme":         domain.ColCourse,
	"branch":            domain.ColSpecialization,
	"enrollment_no":     domain.ColEnrollmentNumber,
	"enrolment_no":      domain.ColEnrollmentNumber,
	"enrolment_number":  domain.ColEnrollmentNumber,
	"roll_no":           domain.ColEnrollmentNumber,
	"roll_number":       domain.ColEnrollmentNumber,
	"admission_year":    domain.ColStartYear,
	"batch_start":       domain.ColStartYear,
	"graduation_year":   domain.ColEndYear,
	"passout_year":      domain.ColEndYear,
	"batch_end":         domain.ColEndYear,
	"sem":               domain.ColSemester,
	"percent":           domain.ColPercentage,
	"marks_json":        domain.ColMarks,
	"comments":          domain.ColRemarks,
	"remark":            domain.ColRemarks,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(norm.NFKC.String(h)))
	h = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '/', '\t':
			return '_'
		}
		return r
	}, h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	h = strings.Trim(h, "_")
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

// normalizeHeaderRow returns the column names by position; duplicates after the first are blanked.
func normalizeHeaderRow(cells []string) ([]string, bool) {
	names := make([]string, len(cells))
	seen := make(map[string]struct{}, len(cells))
	recognised := false
	for i, cell := range cells {
		name := normalizeHeader(cell)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names[i] = name
		if _, ok := knownColumns[name]; ok {
			recognised = true
		}
	}
	return names, recognised
}
