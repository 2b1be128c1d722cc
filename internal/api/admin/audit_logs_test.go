package admin

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func newAuditLogRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newAdminDB(t)
	h := NewAuditLogHandlers(db)

	r := gin.New()
	r.GET("/api/admin/audit-logs", h.ListAuditLogsHandler())
	return r, mock
}

func auditLogRow() *sqlmock.Rows {
	userID := "user-1"
	orgID := "org-1"
	resourceType := "user"
	resourceID := "user-2"
	ip := "203.0.113.7"
	return sqlmock.NewRows(auditCols).AddRow(
		"log-1", &userID, &orgID, "user.create", &resourceType, &resourceID,
		[]byte(`{"method":"POST"}`), &ip, time.Now(),
	)
}

func TestListAuditLogsHandler(t *testing.T) {
	r, mock := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM audit_logs.*ORDER BY created_at DESC").
		WithArgs(20, 0).
		WillReturnRows(auditLogRow())

	w := get(r, "/api/admin/audit-logs")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	logs, _ := body["audit_logs"].([]any)
	if len(logs) != 1 {
		t.Errorf("expected 1 audit log, got %v", body["audit_logs"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListAuditLogsHandlerWithFilters(t *testing.T) {
	r, mock := newAuditLogRouter(t)

	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WithArgs("user-1", "user.create").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM audit_logs").
		WithArgs("user-1", "user.create", 20, 0).
		WillReturnRows(auditLogRow())

	w := get(r, "/api/admin/audit-logs?user_id=user-1&action=user.create")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListAuditLogsHandlerMalformedDate(t *testing.T) {
	r, _ := newAuditLogRouter(t)

	w := get(r, "/api/admin/audit-logs?start_date=yesterday")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
