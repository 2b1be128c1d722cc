package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/payment"
)

const (
	testPublicURL   = "https://api.threateye.example"
	testFrontendURL = "https://app.threateye.example"
)

func newSubscriptionService(t *testing.T, gw *fakeGateway) (*SubscriptionService, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, sqlxDB, mock := newMockDB(t)
	svc := NewSubscriptionService(
		repositories.NewSubscriptionRepository(sqlxDB),
		repositories.NewPlanRepository(sqlxDB),
		repositories.NewOrganizationRepository(rawDB),
		gw,
		testPublicURL,
		testFrontendURL,
	)
	return svc, mock
}

func planRow(id, name, display string, maxUsers int, alerts bool, price float64) *sqlmock.Rows {
	return sqlmock.NewRows(planCols).AddRow(
		id, name, display, maxUsers, alerts, price, time.Now(), time.Now(),
	)
}

func subRow(id, orgID, planID, status string, pidx *string) *sqlmock.Rows {
	return sqlmock.NewRows(subCols).AddRow(
		id, orgID, planID, status, nil, nil, nil, pidx, time.Now(), time.Now(),
	)
}

func orgActor(orgID string) *models.User {
	return &models.User{
		ID:             "user-1",
		Email:          "admin@acme.example",
		Role:           models.RoleOrgAdmin,
		OrganizationID: &orgID,
		IsActive:       true,
	}
}

// ---------------------------------------------------------------------------
// Initiate
// ---------------------------------------------------------------------------

func TestResolvePlanID(t *testing.T) {
	svc, mock := newSubscriptionService(t, &fakeGateway{})

	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE name").
		WithArgs("basic").
		WillReturnRows(planRow("plan-1", "basic", "Basic", 10, false, 999.00))

	id, err := svc.ResolvePlanID(context.Background(), "basic")
	if err != nil {
		t.Fatalf("ResolvePlanID: %v", err)
	}
	if id != "plan-1" {
		t.Errorf("id = %q, want plan-1", id)
	}
}

func TestResolvePlanIDUnknownName(t *testing.T) {
	svc, mock := newSubscriptionService(t, &fakeGateway{})

	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE name").
		WillReturnRows(sqlmock.NewRows(planCols))

	_, err := svc.ResolvePlanID(context.Background(), "no-such-plan")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestInitiateNoOrganization(t *testing.T) {
	svc, _ := newSubscriptionService(t, &fakeGateway{})

	actor := &models.User{ID: "user-1", Role: models.RolePlatformOwner}
	_, err := svc.Initiate(context.Background(), actor, "plan-1")
	if !errors.Is(err, ErrNoOrganization) {
		t.Errorf("expected ErrNoOrganization, got %v", err)
	}
}

func TestInitiatePlanNotFound(t *testing.T) {
	svc, mock := newSubscriptionService(t, &fakeGateway{})

	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE id").
		WillReturnRows(sqlmock.NewRows(planCols))

	_, err := svc.Initiate(context.Background(), orgActor("org-1"), "plan-missing")
	if !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestInitiateFirstPurchase(t *testing.T) {
	gw := &fakeGateway{
		initiateResp: &payment.InitiateResponse{
			Pidx:       "pidx-abc",
			PaymentURL: "https://pay.khalti.example/checkout/pidx-abc",
		},
	}
	svc, mock := newSubscriptionService(t, gw)

	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE id").
		WithArgs("plan-1").
		WillReturnRows(planRow("plan-1", "professional", "Professional", 25, true, 4999.50))
	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE organization_id").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows(subCols))
	mock.ExpectExec("INSERT INTO subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE subscriptions.*SET khalti_pidx").
		WillReturnResult(sqlmock.NewResult(0, 1))

	url, err := svc.Initiate(context.Background(), orgActor("org-1"), "plan-1")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if url != "https://pay.khalti.example/checkout/pidx-abc" {
		t.Errorf("unexpected checkout URL %q", url)
	}

	if len(gw.initiateReqs) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(gw.initiateReqs))
	}
	req := gw.initiateReqs[0]
	// 4999.50 rupees is 499950 paisa; a truncating conversion would lose a paisa.
	if req.Amount != 499950 {
		t.Errorf("Amount = %d paisa, want 499950", req.Amount)
	}
	if !strings.HasPrefix(req.PurchaseOrderID, "Sub-") {
		t.Errorf("PurchaseOrderID = %q, want Sub- prefix", req.PurchaseOrderID)
	}
	if req.ReturnURL != testPublicURL+"/api/subscription/callback" {
		t.Errorf("ReturnURL = %q", req.ReturnURL)
	}
	if req.WebsiteURL != testFrontendURL {
		t.Errorf("WebsiteURL = %q", req.WebsiteURL)
	}
	if req.PurchaseOrderName != "Professional" {
		t.Errorf("PurchaseOrderName = %q", req.PurchaseOrderName)
	}
	if req.CustomerInfo == nil || req.CustomerInfo.Email != "admin@acme.example" {
		t.Errorf("CustomerInfo = %+v", req.CustomerInfo)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInitiateReusesExistingRow(t *testing.T) {
	gw := &fakeGateway{
		initiateResp: &payment.InitiateResponse{Pidx: "pidx-new", PaymentURL: "https://pay.example/x"},
	}
	svc, mock := newSubscriptionService(t, gw)

	oldPidx := "pidx-old"
	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE id").
		WillReturnRows(planRow("plan-2", "basic", "Basic", 5, false, 999))
	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE organization_id").
		WillReturnRows(subRow("sub-1", "org-1", "plan-1", models.SubscriptionExpired, &oldPidx))
	// No INSERT: the existing row is reset onto the new plan.
	mock.ExpectExec("UPDATE subscriptions.*SET plan_id").
		WithArgs("sub-1", "plan-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE subscriptions.*SET khalti_pidx").
		WithArgs("sub-1", "pidx-new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := svc.Initiate(context.Background(), orgActor("org-1"), "plan-2"); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInitiateGatewayFailure(t *testing.T) {
	gw := &fakeGateway{initiateErr: errors.New("gateway timeout")}
	svc, mock := newSubscriptionService(t, gw)

	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE id").
		WillReturnRows(planRow("plan-1", "basic", "Basic", 5, false, 999))
	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(subCols))
	mock.ExpectExec("INSERT INTO subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Initiate(context.Background(), orgActor("org-1"), "plan-1")
	if !IsExternal(err) {
		t.Errorf("expected ExternalError for gateway failure, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// HandleCallback
// ---------------------------------------------------------------------------

func TestHandleCallbackRejectsBeforeLookup(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newSubscriptionService(t, gw)

	t.Run("missing pidx", func(t *testing.T) {
		got := svc.HandleCallback(context.Background(), "", payment.StatusCompleted)
		if got != testFrontendURL+"/subscription/failed" {
			t.Errorf("redirect = %q", got)
		}
	})

	t.Run("client status not completed", func(t *testing.T) {
		got := svc.HandleCallback(context.Background(), "pidx-abc", payment.StatusCanceled)
		if got != testFrontendURL+"/subscription/failed" {
			t.Errorf("redirect = %q", got)
		}
	})

	if len(gw.lookupPidx) != 0 {
		t.Error("rejected callbacks must not reach the gateway lookup")
	}
}

func TestHandleCallbackForgedStatus(t *testing.T) {
	// The browser claims Completed but the server-side lookup says Pending:
	// the crafted callback must not activate anything.
	gw := &fakeGateway{
		lookupResp: &payment.LookupResponse{Pidx: "pidx-abc", Status: payment.StatusPending},
	}
	svc, mock := newSubscriptionService(t, gw)

	got := svc.HandleCallback(context.Background(), "pidx-abc", payment.StatusCompleted)
	if got != testFrontendURL+"/subscription/failed" {
		t.Errorf("redirect = %q", got)
	}
	// No DB expectations were set; a write attempt would fail the mock.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHandleCallbackLookupError(t *testing.T) {
	gw := &fakeGateway{lookupErr: errors.New("gateway unreachable")}
	svc, _ := newSubscriptionService(t, gw)

	got := svc.HandleCallback(context.Background(), "pidx-abc", payment.StatusCompleted)
	if got != testFrontendURL+"/subscription/failed" {
		t.Errorf("redirect = %q", got)
	}
}

func TestHandleCallbackUnknownPidx(t *testing.T) {
	gw := &fakeGateway{
		lookupResp: &payment.LookupResponse{Pidx: "pidx-abc", Status: payment.StatusCompleted},
	}
	svc, mock := newSubscriptionService(t, gw)

	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE khalti_pidx").
		WillReturnRows(sqlmock.NewRows(subCols))

	got := svc.HandleCallback(context.Background(), "pidx-abc", payment.StatusCompleted)
	if got != testFrontendURL+"/subscription/failed" {
		t.Errorf("redirect = %q", got)
	}
}

func TestHandleCallbackSuccess(t *testing.T) {
	gw := &fakeGateway{
		lookupResp: &payment.LookupResponse{
			Pidx:          "pidx-abc",
			Status:        payment.StatusCompleted,
			TransactionID: "txn-1",
		},
	}
	svc, mock := newSubscriptionService(t, gw)
	svc.now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }

	pidx := "pidx-abc"
	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE khalti_pidx").
		WithArgs("pidx-abc").
		WillReturnRows(subRow("sub-1", "org-1", "plan-1", models.SubscriptionPending, &pidx))
	mock.ExpectExec("UPDATE subscriptions.*SET status").
		WithArgs("pidx-abc", models.SubscriptionActive, sqlmock.AnyArg(), "txn-1", sqlmock.AnyArg(), models.SubscriptionPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Plan sync onto the organization after activation.
	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE id").
		WillReturnRows(planRow("plan-1", "professional", "Professional", 25, true, 4999))
	mock.ExpectQuery("SELECT.*FROM organizations.*WHERE id").
		WillReturnRows(orgRow(5))
	mock.ExpectExec("UPDATE organizations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	got := svc.HandleCallback(context.Background(), "pidx-abc", payment.StatusCompleted)
	if got != testFrontendURL+"/subscription/success?txn=txn-1" {
		t.Errorf("redirect = %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHandleCallbackDuplicateIsIdempotent(t *testing.T) {
	gw := &fakeGateway{
		lookupResp: &payment.LookupResponse{
			Pidx:          "pidx-abc",
			Status:        payment.StatusCompleted,
			TransactionID: "txn-1",
		},
	}
	svc, mock := newSubscriptionService(t, gw)

	pidx := "pidx-abc"
	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE khalti_pidx").
		WillReturnRows(subRow("sub-1", "org-1", "plan-1", models.SubscriptionActive, &pidx))
	// The compare-and-set matches no pending row.
	mock.ExpectExec("UPDATE subscriptions.*SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	got := svc.HandleCallback(context.Background(), "pidx-abc", payment.StatusCompleted)
	if got != testFrontendURL+"/subscription/success?txn=txn-1" {
		t.Errorf("duplicate callback should still land on success, got %q", got)
	}
	// No organization sync on a duplicate.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHandleCallbackRowLeftPending(t *testing.T) {
	gw := &fakeGateway{
		lookupResp: &payment.LookupResponse{
			Pidx:          "pidx-abc",
			Status:        payment.StatusCompleted,
			TransactionID: "txn-1",
		},
	}
	svc, mock := newSubscriptionService(t, gw)

	pidx := "pidx-abc"
	// The row left pending through cancellation, not activation.
	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE khalti_pidx").
		WillReturnRows(subRow("sub-1", "org-1", "plan-1", models.SubscriptionCancelled, &pidx))
	mock.ExpectExec("UPDATE subscriptions.*SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	got := svc.HandleCallback(context.Background(), "pidx-abc", payment.StatusCompleted)
	if got != testFrontendURL+"/subscription/failed" {
		t.Errorf("redirect = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func TestStatusElevatedAccess(t *testing.T) {
	svc, mock := newSubscriptionService(t, &fakeGateway{})

	actor := &models.User{ID: "user-1", Role: models.RolePlatformOwner}
	snap, err := svc.Status(context.Background(), actor)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != models.SubscriptionActive {
		t.Errorf("status = %q, want active", snap.Status)
	}
	if snap.Plan != "Platform Administrator" {
		t.Errorf("plan = %q", snap.Plan)
	}
	if snap.MaxUsers != 9999 || !snap.EmailAlertsEnabled || snap.EndDate != nil {
		t.Errorf("unexpected elevated snapshot: %+v", snap)
	}
	// The synthetic status is read from the role, never from storage.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStatusSuperuserFlag(t *testing.T) {
	svc, _ := newSubscriptionService(t, &fakeGateway{})

	orgID := "org-1"
	actor := &models.User{
		ID: "user-1", Role: models.RoleOrgAdmin,
		OrganizationID: &orgID, IsSuperuser: true,
	}
	snap, err := svc.Status(context.Background(), actor)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Plan != "Platform Administrator" {
		t.Errorf("superuser flag should grant the elevated snapshot, got %+v", snap)
	}
}

func TestStatusNoOrganization(t *testing.T) {
	svc, _ := newSubscriptionService(t, &fakeGateway{})

	actor := &models.User{ID: "user-1", Role: models.RoleOrgAdmin}
	_, err := svc.Status(context.Background(), actor)
	if !errors.Is(err, ErrNoOrganization) {
		t.Errorf("expected ErrNoOrganization, got %v", err)
	}
}

func TestStatusNoSubscription(t *testing.T) {
	svc, mock := newSubscriptionService(t, &fakeGateway{})

	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE organization_id").
		WillReturnRows(sqlmock.NewRows(subCols))

	snap, err := svc.Status(context.Background(), orgActor("org-1"))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != "none" {
		t.Errorf("status = %q, want none", snap.Status)
	}
}

func TestStatusWithActivePlan(t *testing.T) {
	svc, mock := newSubscriptionService(t, &fakeGateway{})

	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(subCols).AddRow(
		"sub-1", "org-1", "plan-1", models.SubscriptionActive, nil, &end, nil, nil,
		time.Now(), time.Now(),
	)
	mock.ExpectQuery("SELECT.*FROM subscriptions.*WHERE organization_id").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT.*FROM subscription_plans.*WHERE id").
		WillReturnRows(planRow("plan-1", "professional", "Professional", 25, true, 4999))

	snap, err := svc.Status(context.Background(), orgActor("org-1"))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != models.SubscriptionActive {
		t.Errorf("status = %q", snap.Status)
	}
	if snap.Plan != "Professional" || snap.MaxUsers != 25 || !snap.EmailAlertsEnabled {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.EndDate == nil || !snap.EndDate.Equal(end) {
		t.Errorf("end date = %v, want %v", snap.EndDate, end)
	}
}
