package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db/models"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/repository"
)

func normalizedRow(seed seededCollege, email string) domain.NormalizedRow {
	semester := 4
	cgpa := decimal.RequireFromString("8.40")
	return domain.NormalizedRow{
		Email:            email,
		FirstName:        "Alice",
		LastName:         "Rao",
		Phone:            "9876543210",
		Course:           seed.mba,
		EnrollmentNumber: "MBA-" + email,
		StartYear:        2015,
		EndYear:          2017,
		Semester:         &semester,
		CGPA:             &cgpa,
	}
}

func TestAlumniCommitterIsIdempotentIntegration(t *testing.T) {
	gdb, _ := openIntegrationDB(t)
	seed := seedCollege(t, gdb)
	committer := repository.NewAlumniCommitter(gdb)
	row := normalizedRow(seed, "alice-"+uuid.NewString()[:8]+"@example.com")

	first, err := committer.Commit(context.Background(), row, seed.college)
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if !first.Created || first.Membership.Role != domain.RoleAlumni || !first.Enrollment.IsConfirmed {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if first.AcademicRecord == nil {
		t.Fatal("expected academic record")
	}

	second, err := committer.Commit(context.Background(), row, seed.college)
	if err != nil {
		t.Fatalf("second commit failed: %v", err)
	}
	if second.Created || second.Membership.ID != first.Membership.ID || second.Enrollment.ID != first.Enrollment.ID {
		t.Fatalf("expected the same entities, got %+v and %+v", first, second)
	}
	if second.AcademicRecord.ID != first.AcademicRecord.ID {
		t.Fatalf("expected the same academic record, got %s and %s", first.AcademicRecord.ID, second.AcademicRecord.ID)
	}

	var memberships int64
	gdb.Model(&models.Membership{}).Where("user_id = ? AND college_id = ?", first.Membership.UserID, seed.college.ID).Count(&memberships)
	if memberships != 1 {
		t.Fatalf("expected one membership, got %d", memberships)
	}
}

func TestAlumniCommitterPromotesStudentIntegration(t *testing.T) {
	gdb, _ := openIntegrationDB(t)
	seed := seedCollege(t, gdb)
	committer := repository.NewAlumniCommitter(gdb)
	email := "bob-" + uuid.NewString()[:8] + "@example.com"

	user := models.User{Email: email, FirstName: "Bob"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	student := models.Membership{UserID: user.ID, CollegeID: seed.college.ID, Role: string(domain.RoleStudent)}
	if err := gdb.Create(&student).Error; err != nil {
		t.Fatalf("create membership: %v", err)
	}

	result, err := committer.Commit(context.Background(), normalizedRow(seed, email), seed.college)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !result.Promoted || result.Membership.ID != student.ID || result.Membership.Role != domain.RoleAlumni {
		t.Fatalf("expected promotion of the student membership, got %+v", result)
	}
	if result.Membership.ContactEmail != email {
		t.Fatalf("expected contact snapshot, got %q", result.Membership.ContactEmail)
	}

	var reloaded models.User
	gdb.First(&reloaded, "id = ?", user.ID)
	if reloaded.FirstName != "Bob" || reloaded.LastName != "Rao" {
		t.Fatalf("expected existing name kept and gaps filled, got %+v", reloaded)
	}
}

func TestAlumniCommitterRejectsDuplicateEnrollmentIntegration(t *testing.T) {
	gdb, _ := openIntegrationDB(t)
	seed := seedCollege(t, gdb)
	committer := repository.NewAlumniCommitter(gdb)

	row := normalizedRow(seed, "carol-"+uuid.NewString()[:8]+"@example.com")
	if _, err := committer.Commit(context.Background(), row, seed.college); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	otherYears := row
	otherYears.StartYear, otherYears.EndYear = 2016, 2018
	_, err := committer.Commit(context.Background(), otherYears, seed.college)
	var dup *domain.DuplicateEnrollmentError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateEnrollmentError for changed years, got %v", err)
	}

	otherPerson := row
	otherPerson.Email = "dave-" + uuid.NewString()[:8] + "@example.com"
	_, err = committer.Commit(context.Background(), otherPerson, seed.college)
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateEnrollmentError for a reused number, got %v", err)
	}

	var users int64
	gdb.Model(&models.User{}).Where("email = ?", otherPerson.Email).Count(&users)
	if users != 0 {
		t.Fatal("a rejected row must not leave a user behind")
	}
}

func TestAccessPolicyRepositoryIntegration(t *testing.T) {
	gdb, _ := openIntegrationDB(t)
	seed := seedCollege(t, gdb)
	policy := repository.NewAccessPolicyRepository(gdb)
	ctx := context.Background()

	allowed, err := policy.CanManageImports(ctx, domain.Actor{UserID: seed.adminID}, seed.college.ID)
	if err != nil || !allowed {
		t.Fatalf("expected admin to be allowed, got %v err=%v", allowed, err)
	}

	stranger := models.User{Email: "stranger-" + uuid.NewString()[:8] + "@example.com"}
	if err := gdb.Create(&stranger).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	allowed, err = policy.CanManageImports(ctx, domain.Actor{UserID: stranger.ID}, seed.college.ID)
	if err != nil || allowed {
		t.Fatalf("expected stranger to be denied, got %v err=%v", allowed, err)
	}

	subAdmin := models.Membership{UserID: stranger.ID, CollegeID: seed.college.ID, Role: string(domain.RoleSubAdmin)}
	if err := gdb.Create(&subAdmin).Error; err != nil {
		t.Fatalf("create membership: %v", err)
	}
	allowed, err = policy.CanManageImports(ctx, domain.Actor{UserID: stranger.ID}, seed.college.ID)
	if err != nil || !allowed {
		t.Fatalf("expected sub_admin to be allowed, got %v err=%v", allowed, err)
	}

	acting, err := policy.ActingMembership(ctx, domain.Actor{UserID: stranger.ID}, seed.college.ID)
	if err != nil || acting == nil || *acting != subAdmin.ID {
		t.Fatalf("unexpected acting membership: %v err=%v", acting, err)
	}

	if _, err := policy.CanManageImports(ctx, domain.Actor{UserID: seed.adminID}, uuid.NewString()); !errors.Is(err, domain.ErrCollegeNotFound) {
		t.Fatalf("expected ErrCollegeNotFound, got %v", err)
	}
}

func TestCollegeRepositoryLoadContextIntegration(t *testing.T) {
	gdb, _ := openIntegrationDB(t)
	seed := seedCollege(t, gdb)

	cc, err := repository.NewCollegeRepository(gdb).LoadContext(context.Background(), seed.college.ID)
	if err != nil {
		t.Fatalf("load context failed: %v", err)
	}
	if cc.College.AdminUserID != seed.adminID || cc.MinYear != 1990 || len(cc.Courses) != 1 {
		t.Fatalf("unexpected context: %+v", cc)
	}
	if _, ok := cc.ResolveCourse("mba", ""); !ok {
		t.Fatal("expected MBA to resolve")
	}
}
