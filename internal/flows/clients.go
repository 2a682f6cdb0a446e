package flows

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"log/slog"

	"github.com/fakto/crmbot/core/logger"
	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/supabase"
)

var clientFilterLabels = map[string]string{
	"route":    "ruta",
	"category": "categoría",
	"city":     "ciudad",
}

func (f *flows) clientLookup(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	fx.Send("Por favor, elige un método de filtrado para encontrar al cliente.")
	return clientSubmenu(fx), nil
}

// clientFilter loads the distinct values of one column and offers them
// as inline buttons. The chosen value arrives as a callback token.
func (f *flows) clientFilter(field string) conversation.HandlerFunc {
	return func(ctx context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
		if sess.TenantID == "" {
			fx.Send("Error: No estás autenticado. Por favor, inicia sesión.")
			return f.mainMenu(sess, fx), nil
		}

		res, err := f.store.Table("companies").
			Select(field).
			Eq("tenant_id", sess.TenantID).
			Execute(ctx)
		if err == nil && res.Error != nil {
			err = res.Error
		}
		if err != nil {
			logger.Error(ctx, "gateway", "clients.filter_values",
				slog.String("table", "companies"),
				slog.String("err", err.Error()))
			fx.Send("Ocurrió un error al recuperar los filtros.")
			return clientSubmenu(fx), err
		}

		values := distinctValues(res.Rows, field)
		if len(values) == 0 {
			fx.Send(fmt.Sprintf("No hay valores para '%s' registrados.", clientFilterLabels[field]))
			return clientSubmenu(fx), nil
		}

		var rows [][]conversation.InlineButton
		for _, v := range values {
			rows = append(rows, []conversation.InlineButton{{
				Text:    v,
				Key:     cbClientValue,
				Payload: field + "|" + v,
			}})
		}
		rows = append(rows, []conversation.InlineButton{{Text: "↩️ Volver", Key: cbClientBack}})

		fx.SendInline(fmt.Sprintf("Selecciona un valor para filtrar por %s:", clientFilterLabels[field]), rows)
		return conversation.StateClientFilter, nil
	}
}

func (f *flows) clientFilterBack(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	return clientSubmenu(fx), nil
}

// clientFilterValue runs the filtered query and renders the result set
// as a reply keyboard. The label-to-id mapping is rebuilt wholesale so
// a selection can never resolve against an earlier result set.
func (f *flows) clientFilterValue(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	parts := ev.Callback.PayloadParts("|")
	if len(parts) != 2 {
		fx.Send("Error en el callback. Inténtalo de nuevo.")
		return clientSubmenu(fx), nil
	}
	field, value := parts[0], parts[1]

	if sess.TenantID == "" {
		fx.Send("Sesión expirada. Por favor, vuelve a iniciar sesión.")
		return f.mainMenu(sess, fx), nil
	}

	res, err := f.store.Table("companies").
		Select("id, client_name, city").
		Eq("tenant_id", sess.TenantID).
		Eq(field, value).
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "clients.filtered_list",
			slog.String("table", "companies"),
			slog.String("err", err.Error()))
		fx.Send("Ocurrió un error al obtener los clientes.")
		return clientSubmenu(fx), err
	}
	if len(res.Rows) == 0 {
		fx.Send(fmt.Sprintf("No se encontraron clientes para %s = '%s'.", clientFilterLabels[field], value))
		return clientSubmenu(fx), nil
	}

	labels := make(map[string]string, len(res.Rows))
	var keyboard [][]string
	for _, row := range res.Rows {
		name := row.String("client_name")
		labels[name] = row.String("id")
		keyboard = append(keyboard, []string{name})
	}
	keyboard = append(keyboard, []string{btnBackClientsMenu})

	sess.Selection = &conversation.Selection{
		Table:  "companies",
		Field:  field,
		Value:  value,
		Labels: labels,
	}
	logger.Info(ctx, "gateway", "clients.filtered_list",
		slog.String("tenant_id", sess.TenantID),
		slog.Int("rows", len(res.Rows)))

	fx.SendKeyboard("Elige un cliente:", keyboard)
	return conversation.StateViewingClient, nil
}

// clientSelected resolves the tapped label through the cached mapping
// and offers the per-client actions.
func (f *flows) clientSelected(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	name := strings.TrimSpace(ev.Text)
	if sess.Selection == nil {
		fx.Send("Por favor, selecciona un cliente de la lista.")
		return clientSubmenu(fx), nil
	}
	id, ok := sess.Selection.Labels[name]
	if !ok {
		fx.Send("Por favor, selecciona un cliente de la lista.")
		return conversation.StateViewingClient, nil
	}

	sess.SelectedClient = &conversation.SelectedRef{ID: id, Name: name}
	fx.SendKeyboard(fmt.Sprintf("Acciones para %s:", name), clientActionsKeyboard())
	return conversation.StateClientSubmenu, nil
}

// clientRecord renders the full record of the selected client.
func (f *flows) clientRecord(ctx context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.SelectedClient == nil {
		fx.Send("No hay cliente seleccionado.")
		return clientSubmenu(fx), nil
	}

	res, err := f.store.Table("companies").
		Select("*").
		Eq("id", sess.SelectedClient.ID).
		Eq("tenant_id", sess.TenantID).
		Single().
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil || len(res.Rows) == 0 {
		if err != nil {
			logger.Error(ctx, "gateway", "clients.record",
				slog.String("client_id", sess.SelectedClient.ID),
				slog.String("err", err.Error()))
		}
		fx.Send("No se encontró la ficha del cliente.")
		return clientSubmenu(fx), err
	}

	c := res.Rows[0]
	record := "📄 *Ficha del Cliente*\n\n" +
		fmt.Sprintf("Nombre: %s\n", mdSafe(orDash(c.String("client_name")))) +
		fmt.Sprintf("Ciudad: %s\n", mdSafe(orDash(c.String("city")))) +
		fmt.Sprintf("Ruta: %s\n", mdSafe(orDash(c.String("route")))) +
		fmt.Sprintf("Categoría: %s\n", mdSafe(orDash(c.String("category")))) +
		fmt.Sprintf("Contacto: %s\n", mdSafe(orDash(c.String("contact_person")))) +
		fmt.Sprintf("Teléfono: %s\n", mdSafe(orDash(c.String("phone")))) +
		fmt.Sprintf("Dirección: %s\n", mdSafe(orDash(c.String("address"))))

	fx.Queue(conversation.Message{
		Text:     record,
		Markdown: true,
		Keyboard: [][]string{{btnBackClientsMenu}, {btnBackMainMenu}},
	})
	return conversation.StateClientSubmenu, nil
}

// --- Create flow ---

func (f *flows) clientAddStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.ClientDraft = &conversation.ClientDraft{Awaiting: conversation.ClientFieldName}
	fx.SendMarkdown("Introduce el *nombre* del cliente:")
	return conversation.StateClientSubmenu, nil
}

// clientInput is the free-text collector of the client submenu: it
// feeds the create flow or the modify value step, whichever is open.
func (f *flows) clientInput(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.Modify != nil && sess.Modify.Stage == conversation.ModifyAwaitingValue {
		return f.modifyValue(ctx, ev, sess, fx)
	}
	if sess.ClientDraft != nil && sess.ClientDraft.Awaiting != conversation.ClientFieldNone {
		return f.clientAddInput(ctx, ev, sess, fx)
	}
	fx.Send("Lo siento, no he entendido esa orden. Por favor, usa los botones del menú.")
	return conversation.StateClientSubmenu, nil
}

func (f *flows) clientAddInput(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	draft := sess.ClientDraft
	value := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(value)

	if lower == "cancelar" || lower == "volver" {
		sess.ClientDraft = nil
		fx.Send("Alta de cliente cancelada.")
		return clientSubmenu(fx), nil
	}
	if value == "" {
		fx.Send("El valor no puede estar vacío. Intenta de nuevo:")
		return conversation.StateClientSubmenu, nil
	}

	switch draft.Awaiting {
	case conversation.ClientFieldName:
		draft.Name = value
		draft.Awaiting = conversation.ClientFieldCity
		fx.SendMarkdown("Introduce la *ciudad* del cliente:")
	case conversation.ClientFieldCity:
		draft.City = value
		draft.Awaiting = conversation.ClientFieldRoute
		fx.SendMarkdown("Introduce la *ruta* del cliente:")
	case conversation.ClientFieldRoute:
		draft.Route = value
		draft.Awaiting = conversation.ClientFieldCategory
		fx.SendMarkdown("Introduce la *categoría* del cliente:")
	case conversation.ClientFieldCategory:
		draft.Category = value
		draft.Awaiting = conversation.ClientFieldContact
		fx.SendMarkdown("Introduce la *persona de contacto* del cliente:")
	case conversation.ClientFieldContact:
		draft.Contact = value
		draft.Awaiting = conversation.ClientFieldPhone
		fx.SendMarkdown("Introduce el *teléfono* del cliente:")
	case conversation.ClientFieldPhone:
		if !isDigits(value) {
			fx.Send("El teléfono debe ser numérico. Intenta de nuevo:")
			return conversation.StateClientSubmenu, nil
		}
		draft.Phone = value
		draft.Awaiting = conversation.ClientFieldAddress
		fx.SendMarkdown("Introduce la *dirección* del cliente:")
	case conversation.ClientFieldAddress:
		draft.Address = value
		draft.Awaiting = conversation.ClientFieldConfirm
		fx.SendMarkdown(clientSummary(draft))
	default:
		sess.ClientDraft = nil
		fx.Send("Error en el flujo. Volviendo al submenú de clientes.")
		return clientSubmenu(fx), nil
	}
	return conversation.StateClientSubmenu, nil
}

func clientSummary(d *conversation.ClientDraft) string {
	return "*Resumen del nuevo cliente:*\n" +
		fmt.Sprintf("Nombre: %s\n", d.Name) +
		fmt.Sprintf("Ciudad: %s\n", d.City) +
		fmt.Sprintf("Ruta: %s\n", d.Route) +
		fmt.Sprintf("Categoría: %s\n", d.Category) +
		fmt.Sprintf("Contacto: %s\n", d.Contact) +
		fmt.Sprintf("Teléfono: %s\n", d.Phone) +
		fmt.Sprintf("Dirección: %s\n", d.Address) +
		"\n¿Confirmar alta? (Sí/No)"
}

// clientYesNo routes a typed yes/no to whichever confirmation is open.
func (f *flows) clientYesNo(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.Modify != nil && sess.Modify.Stage == conversation.ModifyAwaitingConfirm {
		return f.modifyConfirm(ctx, ev, sess, fx)
	}
	if sess.ClientDraft != nil && sess.ClientDraft.Awaiting == conversation.ClientFieldConfirm {
		return f.clientAddConfirm(ctx, ev, sess, fx)
	}
	return clientSubmenu(fx), nil
}

func (f *flows) clientAddConfirm(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	draft := sess.ClientDraft
	sess.ClientDraft = nil

	if !isYes(ev.Text) {
		fx.Send("Alta cancelada. No se guardó ningún cliente.")
		return clientSubmenu(fx), nil
	}

	res, err := f.store.Table("companies").Insert(map[string]any{
		"client_name":    draft.Name,
		"city":           draft.City,
		"route":          draft.Route,
		"category":       draft.Category,
		"contact_person": draft.Contact,
		"phone":          draft.Phone,
		"address":        draft.Address,
		"tenant_id":      sess.TenantID,
	}).Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "clients.insert",
			slog.String("tenant_id", sess.TenantID),
			slog.String("err", err.Error()))
		fx.Send(fmt.Sprintf("Error al guardar el cliente: %v", err))
		return clientSubmenu(fx), err
	}
	fx.Send("✅ Cliente añadido correctamente.")
	return clientSubmenu(fx), nil
}

// --- Modify ---

func (f *flows) clientModifyStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.SelectedClient == nil {
		fx.Send("Primero selecciona un cliente para modificar.")
		return clientSubmenu(fx), nil
	}
	return startModify(sess, fx, "companies", sess.SelectedClient, clientModifyFieldKeyboard())
}

// --- Delete ---

func (f *flows) clientDeleteStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.SelectedClient == nil {
		fx.Send("Primero selecciona un cliente para eliminar.")
		return clientSubmenu(fx), nil
	}
	fx.Queue(conversation.Message{
		Text:     fmt.Sprintf("⚠️ ¿Estás seguro de que deseas eliminar a *%s*? Esta acción no se puede deshacer.", sess.SelectedClient.Name),
		Markdown: true,
		Inline: [][]conversation.InlineButton{{
			{Text: "✅ Confirmar", Key: cbDeleteConfirm},
			{Text: "❌ Cancelar", Key: cbDeleteCancel},
		}},
	})
	return conversation.StateClientSubmenu, nil
}

// clientDeleteConfirm performs the scoped delete. A vanished record is
// reported, not treated as a failure, so re-confirming is harmless.
func (f *flows) clientDeleteConfirm(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if ev.Callback.Key == cbDeleteCancel {
		fx.Send("Eliminación cancelada.")
		return clientSubmenu(fx), nil
	}

	if sess.SelectedClient == nil || sess.TenantID == "" {
		fx.Send("Error: No se pudo identificar al cliente. Operación cancelada.")
		return clientSubmenu(fx), nil
	}
	clientID := sess.SelectedClient.ID
	logger.Info(ctx, "gateway", "clients.delete",
		slog.String("client_id", clientID),
		slog.String("tenant_id", sess.TenantID))

	res, err := f.store.Table("companies").
		Delete().
		Eq("id", clientID).
		Eq("tenant_id", sess.TenantID).
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	switch {
	case err != nil:
		logger.Error(ctx, "gateway", "clients.delete",
			slog.String("client_id", clientID),
			slog.String("err", err.Error()))
		fx.Send(fmt.Sprintf("Error al eliminar el cliente: %v", err))
	case len(res.Rows) == 0:
		fx.Send("El cliente no pudo ser eliminado. Verifique los permisos o si el cliente aún existe.")
	default:
		fx.Send("✅ Cliente eliminado correctamente.")
	}

	sess.SelectedClient = nil
	return clientSubmenu(fx), err
}

// distinctValues extracts the sorted distinct non-empty values of one
// column from a result set.
func distinctValues(rows []supabase.Row, field string) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, r := range rows {
		v := strings.TrimSpace(r.String(field))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
