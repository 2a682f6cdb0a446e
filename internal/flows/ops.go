package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"log/slog"

	"github.com/fakto/crmbot/core/logger"
	"github.com/fakto/crmbot/core/telegram/format"
	"github.com/fakto/crmbot/internal/conversation"
)

// clientFieldColumns maps the Spanish field labels of the modify
// keyboard to the companies table columns.
var clientFieldColumns = map[string]string{
	"nombre":    "client_name",
	"ciudad":    "city",
	"ruta":      "route",
	"categoría": "category",
	"contacto":  "contact_person",
	"teléfono":  "phone",
	"dirección": "address",
}

var productFieldColumns = map[string]string{
	"sku":         "sku",
	"nombre":      "name",
	"descripción": "description",
	"categoría":   "category",
	"precio":      "price",
	"stock":       "stock",
}

// numericColumns require a typed value instead of raw text on update.
var numericColumns = map[string]string{
	"sku":   "int",
	"stock": "int",
	"price": "float",
}

func submenuFor(sess *conversation.Session, fx *conversation.Effects) conversation.State {
	if sess.State == conversation.StateProductSubmenu {
		return productSubmenu(fx)
	}
	return clientSubmenu(fx)
}

// startModify opens the pending-operation chain for the given record.
func startModify(sess *conversation.Session, fx *conversation.Effects, table string, ref *conversation.SelectedRef, keyboard [][]string) (conversation.State, error) {
	if ref == nil {
		fx.Send("Primero selecciona un registro para modificar.")
		return submenuFor(sess, fx), nil
	}
	sess.Modify = &conversation.ModifyPending{
		Table:    table,
		RecordID: ref.ID,
		Stage:    conversation.ModifyAwaitingField,
	}
	fx.Queue(conversation.Message{
		Text:     fmt.Sprintf("¿Qué campo deseas modificar de *%s*?", ref.Name),
		Markdown: true,
		Keyboard: keyboard,
	})
	return sess.State, nil
}

// modifyField consumes the field pick of a modify chain. This rule
// shadows the free-text collectors, so the cancel label must abort
// whichever pending operation is open, not only the field pick.
// Outside any pending operation the label keyboards mean nothing and
// the submenu is re-shown.
func (f *flows) modifyField(columns map[string]string) conversation.HandlerFunc {
	return func(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
		label := strings.ToLower(strings.TrimSpace(ev.Text))
		if label == "cancelar" {
			return f.cancelPending(sess, fx)
		}
		if sess.Modify == nil || sess.Modify.Stage != conversation.ModifyAwaitingField {
			return submenuFor(sess, fx), nil
		}
		column, ok := columns[label]
		if !ok {
			fx.Send("Campo no válido. Elige una opción del teclado.")
			return sess.State, nil
		}
		sess.Modify.Column = column
		sess.Modify.FieldLabel = label
		sess.Modify.Stage = conversation.ModifyAwaitingValue
		fx.SendMarkdown(fmt.Sprintf("Introduce el nuevo valor para *%s*:", label))
		return sess.State, nil
	}
}

// cancelPending discards whichever pending operation is open. An armed
// modify chain takes precedence over an in-flight create draft, same
// order the yes/no handlers resolve them in.
func (f *flows) cancelPending(sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	switch {
	case sess.Modify != nil:
		sess.ClearModify()
		fx.Send("Modificación cancelada.")
	case sess.ClientDraft != nil && sess.ClientDraft.Awaiting != conversation.ClientFieldNone:
		sess.ClientDraft = nil
		fx.Send("Alta de cliente cancelada.")
	case sess.ProductDraft != nil && sess.ProductDraft.Awaiting != conversation.ProductFieldNone:
		sess.ProductDraft = nil
		fx.Send("Alta de producto cancelada.")
	}
	return submenuFor(sess, fx), nil
}

// modifyValue consumes the replacement value. "cancelar"/"volver" drop
// the whole chain atomically.
func (f *flows) modifyValue(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	value := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(value)
	if lower == "cancelar" || lower == "volver" {
		sess.ClearModify()
		fx.Send("Modificación cancelada.")
		return submenuFor(sess, fx), nil
	}
	if value == "" {
		fx.Send("El valor no puede estar vacío. Intenta de nuevo:")
		return sess.State, nil
	}
	if sess.Modify.Column == "phone" && !isDigits(value) {
		fx.Send("El teléfono debe ser numérico. Intenta de nuevo:")
		return sess.State, nil
	}
	switch numericColumns[sess.Modify.Column] {
	case "int":
		if !isDigits(value) {
			fx.Send("El valor debe ser un número entero. Intenta de nuevo:")
			return sess.State, nil
		}
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			fx.Send("El valor debe ser numérico. Intenta de nuevo:")
			return sess.State, nil
		}
	}
	sess.Modify.Value = value
	sess.Modify.Stage = conversation.ModifyAwaitingConfirm
	fx.SendMarkdown(fmt.Sprintf("¿Confirmas actualizar *%s* a: %s? (Sí/No)", sess.Modify.FieldLabel, value))
	return sess.State, nil
}

// modifyConfirm applies or discards the pending update. Either way the
// chain is discarded in one step.
func (f *flows) modifyConfirm(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	pending := sess.Modify
	sess.ClearModify()

	if !isYes(ev.Text) {
		fx.Send("Modificación cancelada. No se cambió ningún dato.")
		return submenuFor(sess, fx), nil
	}

	res, err := f.store.Table(pending.Table).
		Update(map[string]any{pending.Column: typedValue(pending.Column, pending.Value)}).
		Eq("id", pending.RecordID).
		Eq("tenant_id", sess.TenantID).
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "modify.update",
			slog.String("table", pending.Table),
			slog.String("err", err.Error()))
		fx.Send(fmt.Sprintf("Error al modificar el registro: %v", err))
		return submenuFor(sess, fx), err
	}
	fx.Send("✅ Registro modificado correctamente.")
	return submenuFor(sess, fx), nil
}

func typedValue(column, raw string) any {
	switch numericColumns[column] {
	case "int":
		n, _ := strconv.Atoi(raw)
		return n
	case "float":
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	return raw
}

// mdSafe escapes a user-entered value embedded in a markdown message.
func mdSafe(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sí", "si", "s":
		return true
	}
	return false
}
