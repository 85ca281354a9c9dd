package alumni

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent  Role = "student"
	RoleFaculty  Role = "faculty"
	RoleAlumni   Role = "alumni"
	RoleSubAdmin Role = "sub_admin"
)

// PromotionOrder lists the roles an existing membership may be promoted from, most preferred first.
var PromotionOrder = []Role{RoleStudent, RoleFaculty, RoleSubAdmin}

type College struct {
	ID              string
	Name            string
	Handle          string
	EstablishedYear int
	AdminUserID     string
}

type Course struct {
	ID             string
	CollegeID      string
	Name           string
	Specialization string
	DurationYears  int
	IsActive       bool
}

// CollegeContext is what the row validator needs to know about the target college.
type CollegeContext struct {
	College College
	Courses []Course
	MinYear int
	MaxYear int
}

const (
	earliestEnrollmentYear = 1900
	futureEnrollmentYears  = 10
)

// NewCollegeContext derives the enrollment year bounds from the college and the current time.
func NewCollegeContext(college College, courses []Course, now time.Time) *CollegeContext {
	minYear := earliestEnrollmentYear
	if college.EstablishedYear > minYear {
		minYear = college.EstablishedYear
	}
	return &CollegeContext{
		College: college,
		Courses: courses,
		MinYear: minYear,
		MaxYear: now.Year() + futureEnrollmentYears,
	}
}

// ResolveCourse matches a course reference by id, or by name and optional specialization.
func (c *CollegeContext) ResolveCourse(ref, specialization string) (Course, bool) {
	ref = strings.TrimSpace(ref)
	specialization = normalizeKey(specialization)
	if ref == "" {
		return Course{}, false
	}

	for _, course := range c.Courses {
		if course.IsActive && strings.EqualFold(course.ID, ref) {
			return course, true
		}
	}

	var match Course
	matches := 0
	for _, course := range c.Courses {
		if !course.IsActive || normalizeKey(course.Name) != normalizeKey(ref) {
			continue
		}
		if specialization != "" && normalizeKey(course.Specialization) != specialization {
			continue
		}
		match = course
		matches++
	}
	if matches != 1 {
		return Course{}, false
	}
	return match, true
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

type Membership struct {
	ID           string
	UserID       string
	CollegeID    string
	Role         Role
	ContactEmail string
	ContactPhone string
}

type Enrollment struct {
	ID               string
	MembershipID     string
	CourseID         string
	EnrollmentNumber string
	StartYear        int
	EndYear          int
	IsConfirmed      bool
}

type AcademicRecord struct {
	ID           string
	EnrollmentID string
	Semester     *int
	CGPA         *decimal.Decimal
	SGPA         *decimal.Decimal
	Percentage   *decimal.Decimal
	Remarks      string
}

// CommitResult reports the entities a committed row resolved to.
type CommitResult struct {
	Membership     Membership
	Enrollment     Enrollment
	AcademicRecord *AcademicRecord
	Promoted       bool
	Created        bool
}

// Actor is the authenticated caller as established by the identity collaborator.
type Actor struct {
	UserID  string
	IsStaff bool
}

func (a Actor) Authenticated() bool {
	return a.UserID != ""
}
