package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db/models"
)

func openIntegrationDB(t *testing.T) (*gorm.DB, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	if err := db.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return gdb, pool
}

type seededCollege struct {
	college domain.College
	mba     domain.Course
	adminID string
}

func seedCollege(t *testing.T, gdb *gorm.DB) seededCollege {
	t.Helper()

	suffix := uuid.NewString()[:8]
	admin := models.User{Email: "admin-" + suffix + "@example.com", FirstName: "Admin"}
	if err := gdb.Create(&admin).Error; err != nil {
		t.Fatalf("failed to create admin: %v", err)
	}

	established := 1990
	college := models.College{
		Name:            "Riverside College " + suffix,
		Handle:          "riverside-" + suffix,
		EstablishedYear: &established,
		AdminUserID:     admin.ID,
	}
	if err := gdb.Create(&college).Error; err != nil {
		t.Fatalf("failed to create college: %v", err)
	}

	course := models.Course{CollegeID: college.ID, Name: "MBA", DurationYears: 2, IsActive: true}
	if err := gdb.Create(&course).Error; err != nil {
		t.Fatalf("failed to create course: %v", err)
	}

	return seededCollege{
		college: domain.College{ID: college.ID, Name: college.Name, Handle: college.Handle, EstablishedYear: established, AdminUserID: admin.ID},
		mba:     domain.Course{ID: course.ID, CollegeID: college.ID, Name: "MBA", DurationYears: 2, IsActive: true},
		adminID: admin.ID,
	}
}
