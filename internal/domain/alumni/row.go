package alumni

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Column names understood by the validator.
const (
	ColEmail            = "email"
	ColFirstName        = "first_name"
	ColLastName         = "last_name"
	ColPhone            = "phone"
	ColCourse           = "course"
	ColSpecialization   = "specialization"
	ColEnrollmentNumber = "enrollment_number"
	ColStartYear        = "start_year"
	ColEndYear          = "end_year"
	ColSemester         = "semester"
	ColCGPA             = "cgpa"
	ColSGPA             = "sgpa"
	ColPercentage       = "percentage"
	ColMarks            = "marks"
	ColRemarks          = "remarks"
)

const (
	maxSemester = 20
	// maxEchoedRunes bounds how much of a rejected cell is repeated in its error message.
	maxEchoedRunes = 64
)

var (
	maxGPA        = decimal.NewFromInt(10)
	maxPercentage = decimal.NewFromInt(100)
)

// RawData is the untyped snapshot of one source row. Values are only trusted after ValidateRow.
type RawData map[string]any

// Text returns the trimmed textual form of a column, or "" when absent.
func (d RawData) Text(column string) string {
	value, ok := d[column]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

type RawRow struct {
	RowNumber int
	Data      RawData
}

type NormalizedRow struct {
	Email            string
	FirstName        string
	LastName         string
	Phone            string
	Course           Course
	EnrollmentNumber string
	StartYear        int
	EndYear          int
	Semester         *int
	CGPA             *decimal.Decimal
	SGPA             *decimal.Decimal
	Percentage       *decimal.Decimal
	Marks            json.RawMessage
	Remarks          string
}

// HasAcademicRecord reports whether the row carries anything worth an AcademicRecord.
func (r NormalizedRow) HasAcademicRecord() bool {
	return r.Semester != nil || r.CGPA != nil || r.SGPA != nil || r.Percentage != nil ||
		len(r.Marks) > 0 || r.Remarks != ""
}

type rowFields struct {
	Email            string `field:"email" validate:"required,email,max=254"`
	FirstName        string `field:"first_name" validate:"required,max=150"`
	LastName         string `field:"last_name" validate:"max=150"`
	Phone            string `field:"phone" validate:"omitempty,min=7,max=20"`
	Course           string `field:"course" validate:"required,max=120"`
	Specialization   string `field:"specialization" validate:"max=120"`
	EnrollmentNumber string `field:"enrollment_number" validate:"max=64"`
	Remarks          string `field:"remarks" validate:"max=2000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("field")
	})
	return v
}

// ValidateRow turns a raw row into a NormalizedRow or a *FieldValidationError listing every problem.
// Passing a nil CollegeContext is a programming error.
func ValidateRow(raw RawRow, cc *CollegeContext) (NormalizedRow, error) {
	if cc == nil {
		panic(ErrMissingCollegeContext)
	}

	fields := rowFields{
		Email:            strings.ToLower(raw.Data.Text(ColEmail)),
		FirstName:        raw.Data.Text(ColFirstName),
		LastName:         raw.Data.Text(ColLastName),
		Phone:            raw.Data.Text(ColPhone),
		Course:           raw.Data.Text(ColCourse),
		Specialization:   raw.Data.Text(ColSpecialization),
		EnrollmentNumber: raw.Data.Text(ColEnrollmentNumber),
		Remarks:          raw.Data.Text(ColRemarks),
	}

	var errs []FieldError
	if err := validate.Struct(fields); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs = append(errs, FieldError{Field: "row", Reason: err.Error()})
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{Field: fe.Field(), Reason: describeTag(fe)})
		}
	}

	row := NormalizedRow{
		Email:            fields.Email,
		FirstName:        fields.FirstName,
		LastName:         fields.LastName,
		Phone:            fields.Phone,
		EnrollmentNumber: fields.EnrollmentNumber,
		Remarks:          fields.Remarks,
	}

	if fields.Course != "" {
		course, ok := cc.ResolveCourse(fields.Course, fields.Specialization)
		if !ok {
			errs = append(errs, FieldError{
				Field:  ColCourse,
				Reason: fmt.Sprintf("course %s does not match any active course of %s", quoteCell(fields.Course), collegeLabel(cc.College)),
			})
		}
		row.Course = course
	}

	startYear, startOK := parseYear(raw.Data, ColStartYear, cc, &errs)
	endYear, endOK := parseYear(raw.Data, ColEndYear, cc, &errs)
	if startOK && endOK && startYear > endYear {
		errs = append(errs, FieldError{
			Field:  ColStartYear,
			Reason: fmt.Sprintf("start year %d is after end year %d", startYear, endYear),
		})
	}
	row.StartYear = startYear
	row.EndYear = endYear

	row.Semester = parseSemester(raw.Data, &errs)
	row.CGPA = parseDecimal(raw.Data, ColCGPA, maxGPA, &errs)
	row.SGPA = parseDecimal(raw.Data, ColSGPA, maxGPA, &errs)
	row.Percentage = parseDecimal(raw.Data, ColPercentage, maxPercentage, &errs)

	if marks := raw.Data.Text(ColMarks); marks != "" {
		if !json.Valid([]byte(marks)) {
			errs = append(errs, FieldError{Field: ColMarks, Reason: "must be valid JSON"})
		} else {
			row.Marks = json.RawMessage(marks)
		}
	}

	if len(errs) > 0 {
		return NormalizedRow{}, &FieldValidationError{Errors: errs}
	}
	return row, nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// quoteCell quotes a cell value for an error message, keeping at most maxEchoedRunes characters.
func quoteCell(text string) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	if utf8.RuneCountInString(text) <= maxEchoedRunes {
		return strconv.Quote(text)
	}
	runes := []rune(text)
	return strconv.Quote(string(runes[:maxEchoedRunes])) + "..."
}

func collegeLabel(c College) string {
	if c.Name != "" {
		return c.Name
	}
	return "college " + c.ID
}

func parseYear(data RawData, column string, cc *CollegeContext, errs *[]FieldError) (int, bool) {
	text := data.Text(column)
	if text == "" {
		*errs = append(*errs, FieldError{Field: column, Reason: "is required"})
		return 0, false
	}
	year, err := strconv.Atoi(strings.TrimSuffix(text, ".0"))
	if err != nil {
		*errs = append(*errs, FieldError{Field: column, Reason: fmt.Sprintf("%s is not a year", quoteCell(text))})
		return 0, false
	}
	if year < cc.MinYear || year > cc.MaxYear {
		*errs = append(*errs, FieldError{
			Field:  column,
			Reason: fmt.Sprintf("year %d is outside %d-%d", year, cc.MinYear, cc.MaxYear),
		})
		return year, false
	}
	return year, true
}

func parseSemester(data RawData, errs *[]FieldError) *int {
	text := data.Text(ColSemester)
	if text == "" {
		return nil
	}
	semester, err := strconv.Atoi(strings.TrimSuffix(text, ".0"))
	if err != nil || semester < 1 || semester > maxSemester {
		*errs = append(*errs, FieldError{
			Field:  ColSemester,
			Reason: fmt.Sprintf("must be a whole number between 1 and %d", maxSemester),
		})
		return nil
	}
	return &semester
}

func parseDecimal(data RawData, column string, upper decimal.Decimal, errs *[]FieldError) *decimal.Decimal {
	text := strings.TrimSpace(strings.TrimSuffix(data.Text(column), "%"))
	if text == "" {
		return nil
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		*errs = append(*errs, FieldError{Field: column, Reason: fmt.Sprintf("%s is not a number", quoteCell(text))})
		return nil
	}
	if value.IsNegative() || value.GreaterThan(upper) {
		*errs = append(*errs, FieldError{
			Field:  column,
			Reason: fmt.Sprintf("must be between 0 and %s", upper.String()),
		})
		return nil
	}
	value = value.Round(2)
	return &value
}
