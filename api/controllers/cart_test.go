package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

type stubCartEditor struct {
	view      *checkout.CartView
	err       error
	productID uuid.UUID
	qty       int
	cleared   bool
	removed   bool
	userID    uuid.UUID
	machine   string
}

func (s *stubCartEditor) Get(_ context.Context, userID uuid.UUID, machineCode string) (*checkout.CartView, error) {
	s.userID, s.machine = userID, machineCode
	return s.view, s.err
}

func (s *stubCartEditor) AddItem(_ context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID, qty int) (*checkout.CartView, error) {
	s.userID, s.machine, s.productID, s.qty = userID, machineCode, productID, qty
	return s.view, s.err
}

func (s *stubCartEditor) UpdateItem(_ context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID, qty int) (*checkout.CartView, error) {
	s.userID, s.machine, s.productID, s.qty = userID, machineCode, productID, qty
	return s.view, s.err
}

func (s *stubCartEditor) RemoveItem(_ context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID) (*checkout.CartView, error) {
	s.removed, s.productID = true, productID
	return s.view, s.err
}

func (s *stubCartEditor) Clear(_ context.Context, userID uuid.UUID, machineCode string) error {
	s.cleared = true
	return s.err
}

func TestCartAddItem(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()
	stub := &stubCartEditor{view: &checkout.CartView{MachineCode: "VM001", ItemCount: 2, Total: decimal.RequireFromString("9.00")}}

	rec := serve(t, http.MethodPost, "/cart/{machineCode}/items", "/cart/VM001/items",
		jsonBody(`{"product_id":"`+productID.String()+`","quantity":2}`), CartAddItem(stub, nil), userID)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if stub.userID != userID || stub.machine != "VM001" || stub.productID != productID || stub.qty != 2 {
		t.Fatalf("unexpected call %+v", stub)
	}
	var view checkout.CartView
	if err := json.Unmarshal(decode(t, rec).Data, &view); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if view.ItemCount != 2 || !view.Total.Equal(decimal.RequireFromString("9.00")) {
		t.Fatalf("unexpected cart %+v", view)
	}
}

func TestCartAddItemValidatesBody(t *testing.T) {
	t.Parallel()

	stub := &stubCartEditor{}
	rec := serve(t, http.MethodPost, "/cart/{machineCode}/items", "/cart/VM001/items",
		jsonBody(`{"product_id":"not-a-uuid","quantity":0}`), CartAddItem(stub, nil), uuid.New())

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	env := decode(t, rec)
	if _, ok := env.Error.Details["product_id"]; !ok {
		t.Fatalf("expected product_id detail, got %+v", env.Error.Details)
	}
	if _, ok := env.Error.Details["quantity"]; !ok {
		t.Fatalf("expected quantity detail, got %+v", env.Error.Details)
	}
}

func TestCartUpdateItemAllowsZero(t *testing.T) {
	t.Parallel()

	stub := &stubCartEditor{view: &checkout.CartView{MachineCode: "VM001"}}
	productID := uuid.New()
	rec := serve(t, http.MethodPut, "/cart/{machineCode}", "/cart/VM001",
		jsonBody(`{"product_id":"`+productID.String()+`","quantity":0}`), CartUpdateItem(stub, nil), uuid.New())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if stub.qty != 0 || stub.productID != productID {
		t.Fatalf("unexpected update %+v", stub)
	}
}

func TestCartDelete(t *testing.T) {
	t.Parallel()

	stub := &stubCartEditor{view: &checkout.CartView{MachineCode: "VM001"}}
	rec := serve(t, http.MethodDelete, "/cart/{machineCode}", "/cart/VM001", nil, CartDelete(stub, nil), uuid.New())
	if rec.Code != http.StatusOK || !stub.cleared {
		t.Fatalf("expected clear, code=%d cleared=%v", rec.Code, stub.cleared)
	}

	productID := uuid.New()
	stub = &stubCartEditor{view: &checkout.CartView{MachineCode: "VM001"}}
	rec = serve(t, http.MethodDelete, "/cart/{machineCode}", "/cart/VM001?product_id="+productID.String(), nil, CartDelete(stub, nil), uuid.New())
	if rec.Code != http.StatusOK || !stub.removed || stub.productID != productID {
		t.Fatalf("expected single removal, code=%d stub=%+v", rec.Code, stub)
	}
}

func TestCartRequiresUser(t *testing.T) {
	t.Parallel()

	rec := serve(t, http.MethodGet, "/cart/{machineCode}", "/cart/VM001", nil, CartGet(&stubCartEditor{}, nil), uuid.Nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestCartSurfacesStockErrors(t *testing.T) {
	t.Parallel()

	stub := &stubCartEditor{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 1 left")}
	rec := serve(t, http.MethodPost, "/cart/{machineCode}/items", "/cart/VM001/items",
		jsonBody(`{"product_id":"`+uuid.NewString()+`","quantity":3}`), CartAddItem(stub, nil), uuid.New())

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if env := decode(t, rec); env.Error.Message != "only 1 left" {
		t.Fatalf("unexpected message %q", env.Error.Message)
	}
}
