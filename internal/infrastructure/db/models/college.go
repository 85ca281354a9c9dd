package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type User struct {
	ID        string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Email     string `gorm:"size:254;not null;uniqueIndex"`
	FirstName string `gorm:"size:150;not null"`
	LastName  string `gorm:"size:150;not null"`
	Phone     string `gorm:"size:20;not null"`
	IsStaff   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

type College struct {
	ID              string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Name            string `gorm:"size:255;not null"`
	Handle          string `gorm:"size:120;not null;uniqueIndex"`
	EstablishedYear *int
	AdminUserID     string `gorm:"type:uuid;not null"`
	Status          string `gorm:"type:text;not null;default:'active'"`
	IsDeleted       bool   `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (College) TableName() string {
	return "colleges"
}

type Course struct {
	ID             string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	CollegeID      string `gorm:"type:uuid;not null;index"`
	Name           string `gorm:"size:120;not null"`
	Specialization string `gorm:"size:120;not null;default:''"`
	DurationYears  int    `gorm:"not null;default:0"`
	IsActive       bool   `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Course) TableName() string {
	return "courses"
}

type Membership struct {
	ID           string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	UserID       string `gorm:"type:uuid;not null"`
	CollegeID    string `gorm:"type:uuid;not null;index"`
	Role         string `gorm:"type:text;not null"`
	ContactEmail string `gorm:"size:254;not null;default:''"`
	ContactPhone string `gorm:"size:20;not null;default:''"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Membership) TableName() string {
	return "memberships"
}

type Enrollment struct {
	ID               string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	MembershipID     string `gorm:"type:uuid;not null;index"`
	CourseID         string `gorm:"type:uuid;not null"`
	EnrollmentNumber string `gorm:"size:64;not null;default:''"`
	StartYear        int    `gorm:"not null"`
	EndYear          int    `gorm:"not null"`
	IsConfirmed      bool   `gorm:"not null;default:false"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Enrollment) TableName() string {
	return "enrollments"
}

type AcademicRecord struct {
	ID           string `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	EnrollmentID string `gorm:"type:uuid;not null;index"`
	Semester     *int
	CGPA         *decimal.Decimal `gorm:"column:cgpa;type:numeric(4,2)"`
	SGPA         *decimal.Decimal `gorm:"column:sgpa;type:numeric(4,2)"`
	Percentage   *decimal.Decimal `gorm:"type:numeric(5,2)"`
	MarksJSON    datatypes.JSON   `gorm:"column:marks_json;type:jsonb"`
	Remarks      string           `gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AcademicRecord) TableName() string {
	return "academic_records"
}
