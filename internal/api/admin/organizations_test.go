package admin

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/db/models"
)

func newOrgRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newAdminDB(t)
	h := NewOrganizationHandlers(db)

	r := gin.New()
	r.GET("/api/admin/organizations", h.ListOrganizationsHandler())
	r.GET("/api/admin/organizations/:id", h.GetOrganizationHandler())
	r.POST("/api/admin/organizations", h.CreateOrganizationHandler())
	r.PUT("/api/admin/organizations/:id", h.UpdateOrganizationHandler())
	r.DELETE("/api/admin/organizations/:id", h.DeleteOrganizationHandler())
	return r, mock
}

func acmeOrgRow(tier string, maxUsers int) *sqlmock.Rows {
	return sqlmock.NewRows(orgCols).AddRow(
		"org-1", "Acme Corp", true, tier, maxUsers, time.Now(), time.Now(),
	)
}

func TestListOrganizationsHandler(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM organizations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM organizations").
		WithArgs(20, 0).
		WillReturnRows(acmeOrgRow(models.TierBasic, 5))

	w := get(r, "/api/admin/organizations")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	orgs, _ := body["organizations"].([]any)
	if len(orgs) != 1 {
		t.Errorf("expected 1 organization, got %v", body["organizations"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetOrganizationHandlerIncludesSeatUsage(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WithArgs("org-1").
		WillReturnRows(acmeOrgRow(models.TierProfessional, 25))
	mock.ExpectQuery("SELECT COUNT.*FROM users.*WHERE organization_id").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	w := get(r, "/api/admin/organizations/org-1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["active_users"] != float64(7) {
		t.Errorf("expected active_users=7, got %v", body["active_users"])
	}
}

func TestGetOrganizationHandlerNotFound(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(sqlmock.NewRows(orgCols))

	w := get(r, "/api/admin/organizations/ghost")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreateOrganizationHandler(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE name").
		WithArgs("Acme Corp").
		WillReturnRows(sqlmock.NewRows(orgCols))
	mock.ExpectExec("INSERT INTO organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPost, "/api/admin/organizations", gin.H{
		"name": "Acme Corp",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	org, _ := body["organization"].(map[string]any)
	if org == nil || org["subscription_tier"] != models.TierFree {
		t.Errorf("new tenants must start on the free tier, got %v", body)
	}
	if org["max_users"] != float64(models.DefaultMaxUsers) {
		t.Errorf("expected the default seat limit, got %v", org["max_users"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateOrganizationHandlerNameTaken(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE name").
		WillReturnRows(acmeOrgRow(models.TierFree, 3))

	w := doJSON(r, http.MethodPost, "/api/admin/organizations", gin.H{
		"name": "Acme Corp",
	})

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateOrganizationHandler(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WithArgs("org-1").
		WillReturnRows(acmeOrgRow(models.TierFree, 3))
	mock.ExpectExec("UPDATE organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodPut, "/api/admin/organizations/org-1", gin.H{
		"subscription_tier": models.TierProfessional,
		"max_users":         25,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	org, _ := body["organization"].(map[string]any)
	if org == nil || org["subscription_tier"] != models.TierProfessional {
		t.Errorf("unexpected organization body: %v", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateOrganizationHandlerUnknownTier(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(acmeOrgRow(models.TierFree, 3))

	w := doJSON(r, http.MethodPut, "/api/admin/organizations/org-1", gin.H{
		"subscription_tier": "platinum-deluxe",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateOrganizationHandlerInvalidSeatLimit(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(acmeOrgRow(models.TierFree, 3))

	w := doJSON(r, http.MethodPut, "/api/admin/organizations/org-1", gin.H{
		"max_users": 0,
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeleteOrganizationHandler(t *testing.T) {
	r, mock := newOrgRouter(t)

	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WithArgs("org-1").
		WillReturnRows(acmeOrgRow(models.TierFree, 3))
	mock.ExpectExec("DELETE FROM organizations").
		WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, http.MethodDelete, "/api/admin/organizations/org-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
