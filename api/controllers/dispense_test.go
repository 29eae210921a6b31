package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/api/middleware"
	"github.com/angelmondragon/vendcare-backend/internal/dispensing"
	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

type stubDispenser struct {
	redemption *dispensing.Redemption
	err        error
	machine    string
	code       string
	reason     string
}

func (s *stubDispenser) Redeem(_ context.Context, machineCode, rawCode string) (*dispensing.Redemption, error) {
	s.machine, s.code = machineCode, rawCode
	return s.redemption, s.err
}

func (s *stubDispenser) ReportFailure(_ context.Context, machineCode, rawCode, reason string) error {
	s.machine, s.code, s.reason = machineCode, rawCode, reason
	return s.err
}

func machineRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, jsonBody(body))
	return req.WithContext(middleware.WithMachine(req.Context(), &models.VendingMachine{ID: uuid.New(), MachineCode: "VM001"}))
}

func TestDispenseUsesAuthenticatedMachine(t *testing.T) {
	t.Parallel()

	stub := &stubDispenser{redemption: &dispensing.Redemption{
		OrderID:     uuid.New(),
		Status:      enums.OrderStatusDispensed,
		DispensedAt: time.Now().UTC(),
		Items:       []dispensing.RedemptionItem{{ProductID: uuid.New(), SlotNumber: "A1", Quantity: 1}},
	}}
	rec := httptest.NewRecorder()
	Dispense(stub, nil).ServeHTTP(rec, machineRequest(http.MethodPost, "/machines/vm001/dispense", `{"code":"ab12cd"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if stub.machine != "VM001" || stub.code != "ab12cd" {
		t.Fatalf("unexpected call machine=%q code=%q", stub.machine, stub.code)
	}
}

func TestDispenseMapsCodeErrors(t *testing.T) {
	t.Parallel()

	stub := &stubDispenser{err: pkgerrors.New(pkgerrors.CodeDispensingCodeError, "dispensing code expired")}
	rec := httptest.NewRecorder()
	Dispense(stub, nil).ServeHTTP(rec, machineRequest(http.MethodPost, "/", `{"code":"AB12CD"}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestDispenseRequiresMachineContext(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Dispense(&stubDispenser{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"code":"AB12CD"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestDispenseFailure(t *testing.T) {
	t.Parallel()

	stub := &stubDispenser{}
	rec := httptest.NewRecorder()
	DispenseFailure(stub, nil).ServeHTTP(rec, machineRequest(http.MethodPost, "/", `{"code":"AB12CD","reason":"  motor jam  "}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if stub.reason != "motor jam" {
		t.Fatalf("unexpected reason %q", stub.reason)
	}
}

type stubSlotUpdater struct {
	slot *inventory.Slot
	err  error
	qty  int
}

func (s *stubSlotUpdater) Update(_ context.Context, machineID, productID uuid.UUID, qty int) (*inventory.Slot, error) {
	s.qty = qty
	return s.slot, s.err
}

func TestOperatorRestock(t *testing.T) {
	t.Parallel()

	machineID, productID := uuid.New(), uuid.New()
	stub := &stubSlotUpdater{slot: &inventory.Slot{MachineID: machineID, ProductID: productID, SlotNumber: "A1", QuantityAvailable: 8, Reserved: 2, MaxCapacity: 10}}
	target := "/operator/machines/" + machineID.String() + "/inventory/" + productID.String()

	rec := serve(t, http.MethodPut, "/operator/machines/{machineId}/inventory/{productId}", target,
		jsonBody(`{"quantity_available":8}`), OperatorRestock(stub, nil), uuid.New())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if stub.qty != 8 {
		t.Fatalf("unexpected quantity %d", stub.qty)
	}

	rec = serve(t, http.MethodPut, "/operator/machines/{machineId}/inventory/{productId}", target,
		jsonBody(`{}`), OperatorRestock(stub, nil), uuid.New())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing quantity got %d", rec.Code)
	}
}

type stubRotator struct {
	key string
	err error
}

func (s stubRotator) RotateDeviceKey(context.Context, uuid.UUID) (string, error) {
	return s.key, s.err
}

func TestOperatorRotateDeviceKey(t *testing.T) {
	t.Parallel()

	machineID := uuid.New()
	rec := serve(t, http.MethodPost, "/operator/machines/{machineId}/device-key", "/operator/machines/"+machineID.String()+"/device-key",
		nil, OperatorRotateDeviceKey(stubRotator{key: "new-key"}, nil), uuid.New())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("expected no-store")
	}

	rec = serve(t, http.MethodPost, "/operator/machines/{machineId}/device-key", "/operator/machines/"+machineID.String()+"/device-key",
		nil, OperatorRotateDeviceKey(stubRotator{err: pkgerrors.New(pkgerrors.CodeNotFound, "machine not found")}, nil), uuid.New())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"database": stubPinger{}, "redis": stubPinger{}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"database": stubPinger{}, "redis": stubPinger{err: errors.New("connection refused")}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if env := decode(t, rec); env.Error.Details["redis"] == nil {
		t.Fatalf("expected redis failure detail, got %+v", env.Error.Details)
	}
}

func TestMachineDetailRequiresCode(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/machines/{machineCode}", MachineDetail(nil, nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/machines/VM001", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without service got %d", rec.Code)
	}
}
