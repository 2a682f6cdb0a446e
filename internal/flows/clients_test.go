package flows

import (
	"testing"

	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/supabase"
)

func TestClientAddRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")

	h.dispatch(t, conversation.TextEvent("Añadir Cliente"))
	h.dispatch(t, conversation.TextEvent("Bodega Central"))
	h.dispatch(t, conversation.TextEvent("Madrid"))
	h.dispatch(t, conversation.TextEvent("Ruta 1"))
	h.dispatch(t, conversation.TextEvent("Mayorista"))
	h.dispatch(t, conversation.TextEvent("Ana Pérez"))

	fx := h.dispatch(t, conversation.TextEvent("no es un número"))
	if !containsText(fx, "El teléfono debe ser numérico") {
		t.Fatalf("expected phone validation, got %v", texts(fx))
	}
	if h.sess.ClientDraft.Awaiting != conversation.ClientFieldPhone {
		t.Fatalf("awaiting = %s", h.sess.ClientDraft.Awaiting)
	}

	h.dispatch(t, conversation.TextEvent("600123456"))
	fx = h.dispatch(t, conversation.TextEvent("Calle Mayor 1"))
	if !containsText(fx, "¿Confirmar alta?") {
		t.Fatalf("expected summary, got %v", texts(fx))
	}

	fx = h.dispatch(t, conversation.TextEvent("Sí"))
	if !containsText(fx, "Cliente añadido correctamente") {
		t.Fatalf("expected success, got %v", texts(fx))
	}

	call := h.store.lastCall("companies", "insert")
	if call == nil {
		t.Fatal("expected an insert")
	}
	if call.body["client_name"] != "Bodega Central" || call.body["phone"] != "600123456" {
		t.Fatalf("unexpected record: %v", call.body)
	}
	if call.body["tenant_id"] != "tenant-a" {
		t.Fatalf("tenant_id = %v", call.body["tenant_id"])
	}
	if h.sess.ClientDraft != nil {
		t.Fatal("draft must be dropped after confirmation")
	}
}

func TestClientAddDeclineDiscardsDraft(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")
	h.sess.ClientDraft = &conversation.ClientDraft{
		Name:     "Bodega Central",
		Awaiting: conversation.ClientFieldConfirm,
	}

	fx := h.dispatch(t, conversation.TextEvent("No"))
	if !containsText(fx, "Alta cancelada") {
		t.Fatalf("expected the decline message, got %v", texts(fx))
	}
	if h.store.lastCall("companies", "insert") != nil {
		t.Fatal("declined draft must not be inserted")
	}
	if h.sess.ClientDraft != nil {
		t.Fatal("draft must be dropped either way")
	}
}

func TestClientFilterValueReplacesSelection(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientFilter
	h.signedIn("tenant-a")
	h.sess.Selection = &conversation.Selection{
		Table:  "companies",
		Labels: map[string]string{"Vieja": "stale-id"},
	}
	h.store.respond("companies", "select", &supabase.Result{Rows: []supabase.Row{
		{"id": "c-1", "client_name": "Bodega Central", "city": "Madrid"},
		{"id": "c-2", "client_name": "Café Sol", "city": "Madrid"},
	}}, nil)

	h.dispatch(t, conversation.CallbackEvent("client_value", "route|Ruta 1"))

	if h.sess.State != conversation.StateViewingClient {
		t.Fatalf("state = %s", h.sess.State)
	}
	sel := h.sess.Selection
	if sel == nil || sel.Field != "route" || sel.Value != "Ruta 1" {
		t.Fatalf("selection = %+v", sel)
	}
	if _, stale := sel.Labels["Vieja"]; stale {
		t.Fatal("old labels must not survive a new result set")
	}
	if sel.Labels["Bodega Central"] != "c-1" || sel.Labels["Café Sol"] != "c-2" {
		t.Fatalf("labels = %v", sel.Labels)
	}

	call := h.store.lastCall("companies", "select")
	if call.filters["tenant_id"] != "tenant-a" || call.filters["route"] != "Ruta 1" {
		t.Fatalf("filters = %v", call.filters)
	}
}

func TestClientSelectedResolvesThroughLabels(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateViewingClient
	h.signedIn("tenant-a")
	h.sess.Selection = &conversation.Selection{
		Table:  "companies",
		Labels: map[string]string{"Bodega Central": "c-1"},
	}

	fx := h.dispatch(t, conversation.TextEvent("Algo Escrito A Mano"))
	if !containsText(fx, "selecciona un cliente de la lista") {
		t.Fatalf("expected re-prompt, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateViewingClient {
		t.Fatalf("state = %s", h.sess.State)
	}

	h.dispatch(t, conversation.TextEvent("Bodega Central"))
	if h.sess.SelectedClient == nil || h.sess.SelectedClient.ID != "c-1" {
		t.Fatalf("selected = %+v", h.sess.SelectedClient)
	}
	if h.sess.State != conversation.StateClientSubmenu {
		t.Fatalf("state = %s", h.sess.State)
	}
}

func TestClientDeleteZeroRowsIsReported(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")
	h.sess.SelectedClient = &conversation.SelectedRef{ID: "c-1", Name: "Bodega Central"}
	h.store.respond("companies", "delete", &supabase.Result{Rows: []supabase.Row{}}, nil)

	fx := h.dispatch(t, conversation.CallbackEvent("confirmar_eliminar", ""))
	if !containsText(fx, "no pudo ser eliminado") {
		t.Fatalf("expected the zero-rows message, got %v", texts(fx))
	}

	call := h.store.lastCall("companies", "delete")
	if call.filters["id"] != "c-1" || call.filters["tenant_id"] != "tenant-a" {
		t.Fatalf("delete must be scoped, filters = %v", call.filters)
	}
	if h.sess.SelectedClient != nil {
		t.Fatal("selection must be dropped after the attempt")
	}
}

func TestClientDeleteCancelDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")
	h.sess.SelectedClient = &conversation.SelectedRef{ID: "c-1", Name: "Bodega Central"}

	fx := h.dispatch(t, conversation.CallbackEvent("cancelar_eliminar", ""))
	if !containsText(fx, "Eliminación cancelada") {
		t.Fatalf("expected cancel message, got %v", texts(fx))
	}
	if h.store.lastCall("companies", "delete") != nil {
		t.Fatal("cancel must not reach the store")
	}
}

func TestModifyChainCancelAtValueStage(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")
	h.sess.SelectedClient = &conversation.SelectedRef{ID: "c-1", Name: "Bodega Central"}

	h.dispatch(t, conversation.TextEvent("Modificar Cliente"))
	if h.sess.Modify == nil || h.sess.Modify.Stage != conversation.ModifyAwaitingField {
		t.Fatalf("modify = %+v", h.sess.Modify)
	}

	h.dispatch(t, conversation.TextEvent("Teléfono"))
	if h.sess.Modify.Stage != conversation.ModifyAwaitingValue || h.sess.Modify.Column != "phone" {
		t.Fatalf("modify = %+v", h.sess.Modify)
	}

	fx := h.dispatch(t, conversation.TextEvent("cancelar"))
	if !containsText(fx, "Modificación cancelada") {
		t.Fatalf("expected cancel message, got %v", texts(fx))
	}
	if h.sess.Modify != nil {
		t.Fatal("the whole chain must be dropped at once")
	}
}

func TestCapitalizedCancelDiscardsClientDraft(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")

	h.dispatch(t, conversation.TextEvent("Añadir Cliente"))
	h.dispatch(t, conversation.TextEvent("Bodega Central"))
	if h.sess.ClientDraft == nil || h.sess.ClientDraft.Awaiting != conversation.ClientFieldCity {
		t.Fatalf("draft = %+v", h.sess.ClientDraft)
	}

	// The keyboard button labels match before the free-text collector,
	// so the capitalized button must behave like typing "cancelar".
	fx := h.dispatch(t, conversation.TextEvent("Cancelar"))
	if !containsText(fx, "Alta de cliente cancelada") {
		t.Fatalf("expected the create cancel message, got %v", texts(fx))
	}
	if h.sess.ClientDraft != nil {
		t.Fatal("draft must be dropped")
	}

	fx = h.dispatch(t, conversation.TextEvent("Madrid"))
	if !containsText(fx, "no he entendido esa orden") {
		t.Fatalf("cancelled flow must not resume, got %v", texts(fx))
	}
}

func TestCapitalizedCancelDiscardsModifyChain(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")
	h.sess.SelectedClient = &conversation.SelectedRef{ID: "c-1", Name: "Bodega Central"}

	h.dispatch(t, conversation.TextEvent("Modificar Cliente"))
	h.dispatch(t, conversation.TextEvent("Ciudad"))
	if h.sess.Modify == nil || h.sess.Modify.Stage != conversation.ModifyAwaitingValue {
		t.Fatalf("modify = %+v", h.sess.Modify)
	}

	fx := h.dispatch(t, conversation.TextEvent("Cancelar"))
	if !containsText(fx, "Modificación cancelada") {
		t.Fatalf("expected cancel message, got %v", texts(fx))
	}
	if h.sess.Modify != nil {
		t.Fatal("the whole chain must be dropped at once")
	}

	h.dispatch(t, conversation.TextEvent("Sí"))
	if h.store.lastCall("companies", "update") != nil {
		t.Fatal("a stray yes after cancel must not update the record")
	}
}

func TestModifyConfirmNoLeavesRecordAlone(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")
	h.sess.Modify = &conversation.ModifyPending{
		Table:      "companies",
		RecordID:   "c-1",
		Stage:      conversation.ModifyAwaitingConfirm,
		Column:     "city",
		FieldLabel: "ciudad",
		Value:      "Sevilla",
	}

	fx := h.dispatch(t, conversation.TextEvent("No"))
	if !containsText(fx, "No se cambió ningún dato") {
		t.Fatalf("expected decline message, got %v", texts(fx))
	}
	if h.store.lastCall("companies", "update") != nil {
		t.Fatal("declined update must not reach the store")
	}
	if h.sess.Modify != nil {
		t.Fatal("chain must be dropped either way")
	}
}

func TestYesNoPrefersOpenModifyOverCreate(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateClientSubmenu
	h.signedIn("tenant-a")
	h.sess.ClientDraft = &conversation.ClientDraft{
		Name:     "Bodega Central",
		Awaiting: conversation.ClientFieldConfirm,
	}
	h.sess.Modify = &conversation.ModifyPending{
		Table:      "companies",
		RecordID:   "c-1",
		Stage:      conversation.ModifyAwaitingConfirm,
		Column:     "city",
		FieldLabel: "ciudad",
		Value:      "Sevilla",
	}

	h.dispatch(t, conversation.TextEvent("Sí"))

	call := h.store.lastCall("companies", "update")
	if call == nil {
		t.Fatal("the open modify confirmation must win")
	}
	if call.body["city"] != "Sevilla" || call.filters["id"] != "c-1" || call.filters["tenant_id"] != "tenant-a" {
		t.Fatalf("update = body %v filters %v", call.body, call.filters)
	}
	if h.store.lastCall("companies", "insert") != nil {
		t.Fatal("the create draft must not be touched by the same yes")
	}
}

func TestTypedValueCoercesNumericColumns(t *testing.T) {
	if v, ok := typedValue("sku", "1001").(int); !ok || v != 1001 {
		t.Fatalf("sku = %v", typedValue("sku", "1001"))
	}
	if v, ok := typedValue("price", "8.5").(float64); !ok || v != 8.5 {
		t.Fatalf("price = %v", typedValue("price", "8.5"))
	}
	if v, ok := typedValue("city", "Madrid").(string); !ok || v != "Madrid" {
		t.Fatalf("city = %v", typedValue("city", "Madrid"))
	}
}

func TestDistinctValuesSortedAndDeduplicated(t *testing.T) {
	rows := []supabase.Row{
		{"route": "Ruta 2"},
		{"route": "Ruta 1"},
		{"route": "Ruta 2"},
		{"route": ""},
		{"route": nil},
	}
	got := distinctValues(rows, "route")
	if len(got) != 2 || got[0] != "Ruta 1" || got[1] != "Ruta 2" {
		t.Fatalf("got %v", got)
	}
}
