package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/fakto/crmbot/core/logger"
	"github.com/fakto/crmbot/core/telegram/helpers"
	"github.com/fakto/crmbot/internal/conversation"
)

// saleStart opens a sale for the selected client, from the sales
// submenu or the per-client "Crear Venta" action.
func (f *flows) saleStart(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	if sess.SelectedClient == nil {
		fx.Send("Primero selecciona un cliente en Gestión de Clientes.")
		return saleSubmenu(fx), nil
	}
	sess.SaleDraft = &conversation.SaleDraft{
		ClientID:   sess.SelectedClient.ID,
		ClientName: sess.SelectedClient.Name,
	}
	fx.SendRemoveKeyboard(fmt.Sprintf("Nueva venta para %s.\nIntroduce el SKU del producto:", sess.SelectedClient.Name))
	return conversation.StateSaleProduct, nil
}

// saleProduct resolves the typed SKU within the tenant.
func (f *flows) saleProduct(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	text := strings.TrimSpace(ev.Text)
	if !isDigits(text) {
		fx.Send("El SKU debe ser un número. Inténtalo de nuevo:")
		return conversation.StateSaleProduct, nil
	}
	sku, _ := strconv.Atoi(text)

	res, err := f.store.Table("products").
		Select("id, sku, name, stock").
		Eq("tenant_id", sess.TenantID).
		Eq("sku", sku).
		Single().
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil || len(res.Rows) == 0 {
		if err != nil {
			logger.Warn(ctx, "gateway", "sales.product_lookup",
				slog.Int("sku", sku),
				slog.String("err", err.Error()))
		}
		fx.Send(fmt.Sprintf("No se encontró ningún producto con SKU %d. Inténtalo de nuevo o cancela con /cancel.", sku))
		return conversation.StateSaleProduct, nil
	}

	p := res.Rows[0]
	sess.SaleDraft.ProductID = p.String("id")
	sess.SaleDraft.ProductName = p.String("name")
	sess.SaleDraft.SKU = p.Int("sku")
	fx.Send(fmt.Sprintf("Producto: %s (stock actual: %d).\nIntroduce la cantidad:", p.String("name"), p.Int("stock")))
	return conversation.StateSaleQuantity, nil
}

func (f *flows) saleQuantity(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	text := strings.TrimSpace(ev.Text)
	if !isDigits(text) {
		fx.Send("La cantidad debe ser un número entero. Inténtalo de nuevo:")
		return conversation.StateSaleQuantity, nil
	}
	qty, _ := strconv.Atoi(text)
	if qty <= 0 {
		fx.Send("La cantidad debe ser mayor que cero. Inténtalo de nuevo:")
		return conversation.StateSaleQuantity, nil
	}
	sess.SaleDraft.Quantity = qty
	fx.Send("Introduce la fecha de la venta (por ejemplo 2026-03-15) o escribe 'hoy':")
	return conversation.StateSaleDate, nil
}

func (f *flows) saleDate(_ context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	text := strings.TrimSpace(ev.Text)
	if strings.EqualFold(text, "hoy") {
		sess.SaleDraft.DateUnix = time.Now().Unix()
	} else {
		unix, ok := helpers.ParseFlexibleDateUnix(text)
		if !ok {
			fx.Send("No he entendido la fecha. Usa un formato como 2026-03-15 o escribe 'hoy':")
			return conversation.StateSaleDate, nil
		}
		sess.SaleDraft.DateUnix = unix
	}

	d := sess.SaleDraft
	summary := "*Resumen de la venta:*\n" +
		fmt.Sprintf("Cliente: %s\n", d.ClientName) +
		fmt.Sprintf("Producto: %s (SKU %d)\n", d.ProductName, d.SKU) +
		fmt.Sprintf("Cantidad: %d\n", d.Quantity) +
		fmt.Sprintf("Fecha: %s\n", time.Unix(d.DateUnix, 0).Format("2006-01-02")) +
		"\n¿Confirmar venta? (Sí/No)"
	fx.SendMarkdown(summary)
	return conversation.StateSaleConfirm, nil
}

func (f *flows) saleConfirm(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	draft := sess.SaleDraft
	sess.SaleDraft = nil
	if draft == nil {
		fx.Send("Error en el flujo. Volviendo al submenú de ventas.")
		return saleSubmenu(fx), nil
	}

	if !isYes(ev.Text) {
		fx.Send("Venta cancelada. No se guardó ningún dato.")
		return saleSubmenu(fx), nil
	}

	res, err := f.store.Table("sales").Insert(map[string]any{
		"company_id": draft.ClientID,
		"product_id": draft.ProductID,
		"quantity":   draft.Quantity,
		"sale_date":  time.Unix(draft.DateUnix, 0).Format(time.RFC3339),
		"tenant_id":  sess.TenantID,
	}).Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "sales.insert",
			slog.String("tenant_id", sess.TenantID),
			slog.String("err", err.Error()))
		fx.Send(fmt.Sprintf("Error al guardar la venta: %v", err))
		return saleSubmenu(fx), err
	}

	logger.Info(ctx, "gateway", "sales.insert",
		slog.String("tenant_id", sess.TenantID),
		slog.String("client_id", draft.ClientID),
		slog.String("product_id", draft.ProductID))
	fx.Send("✅ Venta registrada correctamente.")
	return saleSubmenu(fx), nil
}

// saleList shows the recent sales of the tenant.
func (f *flows) saleList(ctx context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	res, err := f.store.Table("sales").
		Select("quantity, sale_date, company_id, product_id").
		Eq("tenant_id", sess.TenantID).
		Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error(ctx, "gateway", "sales.list",
			slog.String("tenant_id", sess.TenantID),
			slog.String("err", err.Error()))
		fx.Send("Ocurrió un error al consultar las ventas.")
		return saleSubmenu(fx), err
	}
	if len(res.Rows) == 0 {
		fx.Send("No hay ventas registradas.")
		return saleSubmenu(fx), nil
	}

	var b strings.Builder
	b.WriteString("Ventas registradas:\n\n")
	for i, row := range res.Rows {
		date := row.String("sale_date")
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			date = t.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "%d. %s (cantidad: %d)\n", i+1, date, row.Int("quantity"))
	}
	fx.Send(b.String())
	return saleSubmenu(fx), nil
}

func (f *flows) salePending(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	fx.Send("Funcionalidad pendiente de implementación.")
	return saleSubmenu(fx), nil
}
