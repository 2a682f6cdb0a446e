package flows

import (
	"testing"

	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/supabase"
)

func TestSaleStartRequiresSelectedClient(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSaleSubmenu
	h.signedIn("tenant-a")

	fx := h.dispatch(t, conversation.TextEvent("Añadir Venta"))
	if !containsText(fx, "Primero selecciona un cliente") {
		t.Fatalf("expected guard message, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateSaleSubmenu {
		t.Fatalf("state = %s", h.sess.State)
	}
}

func TestSaleRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSaleSubmenu
	h.signedIn("tenant-a")
	h.sess.SelectedClient = &conversation.SelectedRef{ID: "c-1", Name: "Bodega Central"}
	h.store.respond("products", "select", &supabase.Result{Rows: []supabase.Row{
		{"id": "p-1", "sku": float64(1001), "name": "Café Molido", "stock": float64(42)},
	}}, nil)

	h.dispatch(t, conversation.TextEvent("Añadir Venta"))
	if h.sess.State != conversation.StateSaleProduct {
		t.Fatalf("state = %s", h.sess.State)
	}

	fx := h.dispatch(t, conversation.TextEvent("1001"))
	if !containsText(fx, "Café Molido") {
		t.Fatalf("expected product echo, got %v", texts(fx))
	}
	lookup := h.store.lastCall("products", "select")
	if lookup.filters["tenant_id"] != "tenant-a" || lookup.filters["sku"] != 1001 {
		t.Fatalf("lookup filters = %v", lookup.filters)
	}

	fx = h.dispatch(t, conversation.TextEvent("0"))
	if !containsText(fx, "mayor que cero") {
		t.Fatalf("expected quantity validation, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateSaleQuantity {
		t.Fatalf("state = %s", h.sess.State)
	}

	h.dispatch(t, conversation.TextEvent("3"))
	fx = h.dispatch(t, conversation.TextEvent("hoy"))
	if !containsText(fx, "Resumen de la venta") {
		t.Fatalf("expected summary, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateSaleConfirm {
		t.Fatalf("state = %s", h.sess.State)
	}

	fx = h.dispatch(t, conversation.TextEvent("Sí"))
	if !containsText(fx, "Venta registrada correctamente") {
		t.Fatalf("expected success, got %v", texts(fx))
	}

	call := h.store.lastCall("sales", "insert")
	if call == nil {
		t.Fatal("expected a sale insert")
	}
	if call.body["company_id"] != "c-1" || call.body["product_id"] != "p-1" {
		t.Fatalf("sale row = %v", call.body)
	}
	if call.body["quantity"] != 3 || call.body["tenant_id"] != "tenant-a" {
		t.Fatalf("sale row = %v", call.body)
	}
	if call.body["sale_date"] == "" {
		t.Fatal("sale_date must be set")
	}
	if h.sess.SaleDraft != nil {
		t.Fatal("draft must be dropped after confirmation")
	}
}

func TestSaleUnknownSKUKeepsAsking(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSaleProduct
	h.signedIn("tenant-a")
	h.sess.SaleDraft = &conversation.SaleDraft{ClientID: "c-1", ClientName: "Bodega Central"}
	h.store.respond("products", "select", &supabase.Result{}, nil)

	fx := h.dispatch(t, conversation.TextEvent("4242"))
	if !containsText(fx, "No se encontró ningún producto con SKU 4242") {
		t.Fatalf("expected not-found message, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateSaleProduct {
		t.Fatalf("state = %s", h.sess.State)
	}
}

func TestSaleDeclineDiscardsDraft(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSaleConfirm
	h.signedIn("tenant-a")
	h.sess.SaleDraft = &conversation.SaleDraft{
		ClientID:  "c-1",
		ProductID: "p-1",
		Quantity:  3,
	}

	fx := h.dispatch(t, conversation.TextEvent("No"))
	if !containsText(fx, "Venta cancelada") {
		t.Fatalf("expected decline message, got %v", texts(fx))
	}
	if h.store.lastCall("sales", "insert") != nil {
		t.Fatal("declined sale must not be inserted")
	}
	if h.sess.SaleDraft != nil {
		t.Fatal("draft must be dropped either way")
	}
}

func TestSaleListEmpty(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSaleSubmenu
	h.signedIn("tenant-a")
	h.store.respond("sales", "select", &supabase.Result{}, nil)

	fx := h.dispatch(t, conversation.TextEvent("Consulta Venta"))
	if !containsText(fx, "No hay ventas registradas") {
		t.Fatalf("expected empty message, got %v", texts(fx))
	}
}
