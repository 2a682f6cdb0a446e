package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"log/slog"

	"github.com/fakto/crmbot/core/logger"
	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/supabase"
)

// productFilterOptions are the lookup filters, in menu order.
var productFilterOptions = []struct {
	Key   string
	Label string
}{
	{"sku", "Código/SKU"},
	{"category", "Categoría"},
	{"supplier_id", "Proveedor"},
	{"stock", "Disponibilidad"},
}

func productFilterLabel(key string) string {
	for _, opt := range productFilterOptions {
		if opt.Key == key {
			return opt.Label
		}
	}
	return key
}

// --- Create flow ---

func (f *flows) productAddStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.ProductDraft = &conversation.ProductDraft{Awaiting: conversation.ProductFieldSKU}
	fx.Send("Introduce el código o SKU numérico del producto:")
	return conversation.StateProductSubmenu, nil
}

// productInput is the free-text collector of the product submenu,
// feeding the create flow or an open modify chain.
func (f *flows) productInput(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.Modify != nil && sess.Modify.Stage == conversation.ModifyAwaitingValue {
		return f.modifyValue(ctx, ev, sess, fx)
	}
	if sess.ProductDraft != nil && sess.ProductDraft.Awaiting != conversation.ProductFieldNone {
		return f.productAddInput(ctx, ev, sess, fx)
	}
	fx.Send("Lo siento, no he entendido esa orden. Por favor, usa los botones del menú.")
	return conversation.StateProductSubmenu, nil
}

func (f *flows) productAddInput(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	draft := sess.ProductDraft
	value := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(value)

	if lower == "cancelar" || lower == "volver" {
		sess.ProductDraft = nil
		fx.Send("Alta de producto cancelada.")
		return productSubmenu(fx), nil
	}
	if value == "" {
		fx.Send("El valor no puede estar vacío. Intenta de nuevo:")
		return conversation.StateProductSubmenu, nil
	}

	switch draft.Awaiting {
	case conversation.ProductFieldSKU:
		if !isDigits(value) {
			fx.Send("El SKU debe ser un número. Inténtalo de nuevo:")
			return conversation.StateProductSubmenu, nil
		}
		draft.SKU, _ = strconv.Atoi(value)
		draft.Awaiting = conversation.ProductFieldName
		fx.Send("Introduce el nombre del producto:")
	case conversation.ProductFieldName:
		draft.Name = value
		draft.Awaiting = conversation.ProductFieldDescription
		fx.Send("Introduce una descripción del producto:")
	case conversation.ProductFieldDescription:
		draft.Description = value
		draft.Awaiting = conversation.ProductFieldCategory
		fx.Send("Introduce la categoría del producto:")
	case conversation.ProductFieldCategory:
		draft.Category = value
		draft.Awaiting = conversation.ProductFieldPrice
		fx.Send("Introduce el precio del producto:")
	case conversation.ProductFieldPrice:
		price, err := strconv.ParseFloat(value, 64)
		if err != nil || price < 0 {
			fx.Send("El precio debe ser numérico. Inténtalo de nuevo:")
			return conversation.StateProductSubmenu, nil
		}
		draft.Price = price
		draft.Awaiting = conversation.ProductFieldStock
		fx.Send("Introduce el stock inicial del producto:")
	case conversation.ProductFieldStock:
		if !isDigits(value) {
			fx.Send("El stock debe ser un número entero. Inténtalo de nuevo:")
			return conversation.StateProductSubmenu, nil
		}
		draft.Stock, _ = strconv.Atoi(value)
		draft.Awaiting = conversation.ProductFieldConfirm
		fx.SendMarkdown(productSummary(draft))
	default:
		sess.ProductDraft = nil
		fx.Send("Error en el flujo. Volviendo al submenú de productos.")
		return productSubmenu(fx), nil
	}
	return conversation.StateProductSubmenu, nil
}

func productSummary(d *conversation.ProductDraft) string {
	return "*Resumen del nuevo producto:*\n" +
		fmt.Sprintf("SKU: %d\n", d.SKU) +
		fmt.Sprintf("Nombre: %s\n", d.Name) +
		fmt.Sprintf("Descripción: %s\n", d.Description) +
		fmt.Sprintf("Categoría: %s\n", d.Category) +
		fmt.Sprintf("Precio: $%.2f\n", d.Price) +
		fmt.Sprintf("Stock: %d\n", d.Stock) +
		"\n¿Confirmar alta? (Sí/No)"
}

func (f *flows) productYesNo(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.Modify != nil && sess.Modify.Stage == conversation.ModifyAwaitingConfirm {
		return f.modifyConfirm(ctx, ev, sess, fx)
	}
	if sess.ProductDraft != nil && sess.ProductDraft.Awaiting == conversation.ProductFieldConfirm {
		return f.productAddConfirm(ctx, ev, sess, fx)
	}
	return productSubmenu(fx), nil
}

func (f *flows) productAddConfirm(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	draft := sess.ProductDraft
	sess.ProductDraft = nil

	if !isYes(ev.Text) {
		fx.Send("Alta cancelada. No se guardó ningún producto.")
		return productSubmenu(fx), nil
	}

	res, err := f.store.Table("products").Insert(map[string]any{
		"sku":         draft.SKU,
		"name":        draft.Name,
		"description": draft.Description,
		"category":    draft.Category,
		"price":       draft.Price,
		"stock":       draft.Stock,
		"tenant_id":   sess.TenantID,
	}).Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "products.insert",
			slog.String("tenant_id", sess.TenantID),
			slog.String("err", err.Error()))
		fx.Send(fmt.Sprintf("Error al guardar el producto: %v", err))
		return productSubmenu(fx), err
	}
	fx.Send("✅ Producto añadido correctamente.")
	return productSubmenu(fx), nil
}

// --- Lookup ---

func (f *flows) productLookup(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	var rows [][]conversation.InlineButton
	for _, opt := range productFilterOptions {
		rows = append(rows, []conversation.InlineButton{{
			Text:    opt.Label,
			Key:     cbProductFilter,
			Payload: opt.Key,
		}})
	}
	rows = append(rows, []conversation.InlineButton{{Text: btnCancel, Key: cbFilterCancel}})

	fx.SendInline("¿Cómo quieres filtrar los productos?", rows)
	return conversation.StateProductFilter, nil
}

func (f *flows) productFilterCancel(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	return productSubmenu(fx), nil
}

// productFilterSelect offers the values of the picked filter. The stock
// filter is a fixed availability pair instead of a distinct scan.
func (f *flows) productFilterSelect(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	field := ev.Callback.Payload

	if field == "stock" {
		fx.SendInline("Selecciona la disponibilidad:", [][]conversation.InlineButton{
			{{Text: "Con stock", Key: cbProductValue, Payload: "stock|true"}},
			{{Text: "Sin stock", Key: cbProductValue, Payload: "stock|false"}},
		})
		return conversation.StateProductFilter, nil
	}

	res, err := f.store.Table("products").
		Select(field).
		Eq("tenant_id", sess.TenantID).
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "products.filter_values",
			slog.String("table", "products"),
			slog.String("err", err.Error()))
		fx.Send("Error al consultar las opciones de filtro.")
		return productSubmenu(fx), err
	}

	values := distinctValues(res.Rows, field)
	if len(values) == 0 {
		fx.Send("No se encontraron opciones para este filtro.")
		return productSubmenu(fx), nil
	}

	var rows [][]conversation.InlineButton
	for _, v := range values {
		rows = append(rows, []conversation.InlineButton{{
			Text:    v,
			Key:     cbProductValue,
			Payload: field + "|" + v,
		}})
	}
	fx.SendInline(fmt.Sprintf("Selecciona una opción para %s:", productFilterLabel(field)), rows)
	return conversation.StateProductFilter, nil
}

// productFilterValue runs the filtered query and renders a numbered
// list; the cached summaries back the number-based selection step.
func (f *flows) productFilterValue(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	parts := ev.Callback.PayloadParts("|")
	if len(parts) != 2 {
		fx.Send("Error en el callback. Inténtalo de nuevo.")
		return productSubmenu(fx), nil
	}
	field, value := parts[0], parts[1]

	q := f.store.Table("products").Select("*").Eq("tenant_id", sess.TenantID)
	if field == "stock" {
		if value == "true" {
			q = q.Gt("stock", 0)
		} else {
			q = q.Eq("stock", 0)
		}
	} else {
		q = q.Eq(field, value)
	}

	res, err := q.Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "products.filtered_list",
			slog.String("table", "products"),
			slog.String("err", err.Error()))
		fx.Send("Ocurrió un error al buscar los productos.")
		return productSubmenu(fx), err
	}
	if len(res.Rows) == 0 {
		fx.Send("No se encontraron productos con ese criterio.")
		return productSubmenu(fx), nil
	}

	sess.ProductResults = toProductSummaries(res.Rows)

	var b strings.Builder
	b.WriteString("Productos encontrados:\n\n")
	for i, p := range sess.ProductResults {
		fmt.Fprintf(&b, "%d. [SKU: %d] %s (Stock: %d)\n", i+1, p.SKU, p.Name, p.Stock)
	}
	b.WriteString("\nSelecciona un número para ver detalles o escribe 'cancelar'.")

	logger.Info(ctx, "gateway", "products.filtered_list",
		slog.String("tenant_id", sess.TenantID),
		slog.Int("results_shown", len(sess.ProductResults)))

	fx.Send(b.String())
	return conversation.StateViewingProduct, nil
}

func toProductSummaries(rows []supabase.Row) []conversation.ProductSummary {
	out := make([]conversation.ProductSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, conversation.ProductSummary{
			ID:          r.String("id"),
			SKU:         r.Int("sku"),
			Name:        r.String("name"),
			Description: r.String("description"),
			Category:    r.String("category"),
			Price:       r.Float("price"),
			Stock:       r.Int("stock"),
		})
	}
	return out
}

// productDetail resolves a typed number against the cached result set
// and renders the record with its action keyboard.
func (f *flows) productDetail(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	text := strings.TrimSpace(ev.Text)
	if !isDigits(text) {
		fx.Send("Por favor, introduce un número válido.")
		return conversation.StateViewingProduct, nil
	}

	idx, _ := strconv.Atoi(text)
	idx--
	if idx < 0 || idx >= len(sess.ProductResults) {
		fx.Send("Selección no válida. Inténtalo de nuevo.")
		return conversation.StateViewingProduct, nil
	}

	p := sess.ProductResults[idx]
	sess.SelectedProduct = &conversation.SelectedRef{ID: p.ID, Name: p.Name}

	detail := "*Detalles del Producto*\n\n" +
		fmt.Sprintf("*SKU:* %d\n", p.SKU) +
		fmt.Sprintf("*Nombre:* %s\n", mdSafe(orDash(p.Name))) +
		fmt.Sprintf("*Descripción:* %s\n", mdSafe(orDash(p.Description))) +
		fmt.Sprintf("*Categoría:* %s\n", mdSafe(orDash(p.Category))) +
		fmt.Sprintf("*Precio:* $%.2f\n", p.Price) +
		fmt.Sprintf("*Stock:* %d\n", p.Stock)

	fx.Queue(conversation.Message{
		Text:     detail,
		Markdown: true,
		Keyboard: productActionsKeyboard(),
	})
	return conversation.StateProductSubmenu, nil
}

// --- Modify / delete ---

func (f *flows) productModifyStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.SelectedProduct == nil {
		fx.Send("Primero selecciona un producto para modificar.")
		return productSubmenu(fx), nil
	}
	return startModify(sess, fx, "products", sess.SelectedProduct, [][]string{
		{"SKU", "Nombre"},
		{"Descripción", "Categoría"},
		{"Precio", "Stock"},
		{btnCancel},
	})
}

func (f *flows) productDeleteStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.SelectedProduct == nil {
		fx.Send("Primero selecciona un producto para eliminar.")
		return productSubmenu(fx), nil
	}
	fx.Queue(conversation.Message{
		Text:     fmt.Sprintf("⚠️ ¿Estás seguro de que deseas eliminar *%s*? Esta acción no se puede deshacer.", sess.SelectedProduct.Name),
		Markdown: true,
		Inline: [][]conversation.InlineButton{{
			{Text: "✅ Confirmar", Key: cbDeleteConfirm},
			{Text: "❌ Cancelar", Key: cbDeleteCancel},
		}},
	})
	return conversation.StateProductSubmenu, nil
}

func (f *flows) productDeleteConfirm(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if ev.Callback.Key == cbDeleteCancel {
		fx.Send("Eliminación cancelada.")
		return productSubmenu(fx), nil
	}
	if sess.SelectedProduct == nil || sess.TenantID == "" {
		fx.Send("Error: No se pudo identificar el producto. Operación cancelada.")
		return productSubmenu(fx), nil
	}

	res, err := f.store.Table("products").
		Delete().
		Eq("id", sess.SelectedProduct.ID).
		Eq("tenant_id", sess.TenantID).
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	switch {
	case err != nil:
		logger.Error(ctx, "gateway", "products.delete",
			slog.String("product_id", sess.SelectedProduct.ID),
			slog.String("err", err.Error()))
		fx.Send(fmt.Sprintf("Error al eliminar el producto: %v", err))
	case len(res.Rows) == 0:
		fx.Send("El producto no pudo ser eliminado. Verifique los permisos o si el producto aún existe.")
	default:
		fx.Send("✅ Producto eliminado correctamente.")
	}

	sess.SelectedProduct = nil
	return productSubmenu(fx), err
}
