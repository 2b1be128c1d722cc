package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/threateye/threateye-backend/internal/db/models"
)

var orgCols = []string{
	"id", "name", "is_active", "subscription_tier", "max_users", "created_at", "updated_at",
}

func sampleOrgRow() *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).AddRow(
		"org-1", "Acme Corp", true, models.TierFree, 5, time.Now(), time.Now(),
	)
}

func newOrgRepo(t *testing.T) (*OrganizationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOrganizationRepository(db), mock
}

func TestCreateOrganization(t *testing.T) {
	repo, mock := newOrgRepo(t)

	org := &models.Organization{
		Name:             "Acme Corp",
		IsActive:         true,
		SubscriptionTier: models.TierFree,
		MaxUsers:         models.DefaultMaxUsers,
	}

	mock.ExpectExec("INSERT INTO organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CreateOrganization(context.Background(), org); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if org.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestGetOrganizationByID(t *testing.T) {
	repo, mock := newOrgRepo(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WithArgs("org-1").
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetOrganizationByID(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("GetOrganizationByID: %v", err)
	}
	if org == nil || org.Name != "Acme Corp" {
		t.Errorf("unexpected org: %+v", org)
	}
}

func TestGetOrganizationByIDNotFound(t *testing.T) {
	repo, mock := newOrgRepo(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orgCols))

	org, err := repo.GetOrganizationByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetOrganizationByID: %v", err)
	}
	if org != nil {
		t.Errorf("expected nil org, got %+v", org)
	}
}

func TestGetOrganizationByName(t *testing.T) {
	repo, mock := newOrgRepo(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE name").
		WithArgs("Acme Corp").
		WillReturnRows(sampleOrgRow())

	org, err := repo.GetOrganizationByName(context.Background(), "Acme Corp")
	if err != nil {
		t.Fatalf("GetOrganizationByName: %v", err)
	}
	if org == nil || org.ID != "org-1" {
		t.Errorf("unexpected org: %+v", org)
	}
}

func TestListOrganizations(t *testing.T) {
	repo, mock := newOrgRepo(t)

	mock.ExpectQuery("SELECT COUNT.*FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM organizations.*ORDER BY created_at").
		WithArgs(50, 0).
		WillReturnRows(sampleOrgRow())

	orgs, total, err := repo.ListOrganizations(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if total != 1 || len(orgs) != 1 {
		t.Errorf("expected 1 org, got total=%d len=%d", total, len(orgs))
	}
}

func TestListOrganizationsCountError(t *testing.T) {
	repo, mock := newOrgRepo(t)

	mock.ExpectQuery("SELECT COUNT.*FROM organizations").WillReturnError(errDB)

	_, _, err := repo.ListOrganizations(context.Background(), 50, 0)
	if !errors.Is(err, errDB) {
		t.Errorf("expected errDB, got %v", err)
	}
}

func TestUpdateOrganization(t *testing.T) {
	repo, mock := newOrgRepo(t)

	org := &models.Organization{
		ID:               "org-1",
		Name:             "Acme Renamed",
		IsActive:         true,
		SubscriptionTier: models.TierBasic,
		MaxUsers:         10,
	}

	mock.ExpectExec("UPDATE organizations.*SET name").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateOrganization(context.Background(), org); err != nil {
		t.Fatalf("UpdateOrganization: %v", err)
	}
}

func TestSetSubscriptionTier(t *testing.T) {
	repo, mock := newOrgRepo(t)

	mock.ExpectExec("UPDATE organizations.*SET subscription_tier").
		WithArgs("org-1", models.TierProfessional, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetSubscriptionTier(context.Background(), "org-1", models.TierProfessional); err != nil {
		t.Fatalf("SetSubscriptionTier: %v", err)
	}
}

func TestDeleteOrganization(t *testing.T) {
	repo, mock := newOrgRepo(t)

	mock.ExpectExec("DELETE FROM organizations").
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteOrganization(context.Background(), "org-1"); err != nil {
		t.Fatalf("DeleteOrganization: %v", err)
	}
}
