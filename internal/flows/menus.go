package flows

import "github.com/fakto/crmbot/internal/conversation"

// Button labels shared across flows. The reply keyboards are the
// conversation surface: state rules match on these exact strings.
const (
	btnRegister      = "Registrarse"
	btnLogin         = "Iniciar sesión"
	btnResetPassword = "Restablecer contraseña"
	btnLogout        = "Cerrar Sesión"

	btnClients  = "Gestión de Clientes"
	btnProducts = "Gestión de Productos"
	btnSales    = "Gestión de Ventas"

	btnClientLookup     = "Consulta Cliente"
	btnFilterRoute      = "Filtrar por Ruta"
	btnFilterCategory   = "Filtrar por Categoría"
	btnFilterCity       = "Filtrar por Ciudad"
	btnClientAdd        = "Añadir Cliente"
	btnClientModify     = "Modificar Cliente"
	btnClientDelete     = "Eliminar Cliente"
	btnClientRecord     = "Ver Ficha Completa"
	btnCreateSale       = "Crear Venta"
	btnBackMainMenu     = "Volver al Menú Principal"
	btnBackClientsMenu  = "Volver al Submenú de Clientes"
	btnBackProductsMenu = "Volver al Submenú de Productos"

	btnProductAdd    = "Añadir Producto"
	btnProductLookup = "Consulta Producto"
	btnProductModify = "Modificar Producto"
	btnProductDelete = "Eliminar Producto"
	btnBackToList    = "Volver a la lista"

	btnSaleAdd    = "Añadir Venta"
	btnSaleLookup = "Consulta Venta"
	btnSaleModify = "Modificar Venta"
	btnSaleDelete = "Eliminar Venta"

	btnCancel = "Cancelar"
)

// Callback token keys for inline keyboards.
const (
	cbClientValue   = "client_value"
	cbClientBack    = "client_back"
	cbProductFilter = "product_filter"
	cbProductValue  = "product_value"
	cbFilterCancel  = "cancel_filter"
	cbDeleteConfirm = "confirmar_eliminar"
	cbDeleteCancel  = "cancelar_eliminar"
)

// CallbackKeys lists every callback token key the flows emit, in a
// stable order. The transport registers a route per key.
func CallbackKeys() []string {
	return []string{
		cbClientValue,
		cbClientBack,
		cbProductFilter,
		cbProductValue,
		cbFilterCancel,
		cbDeleteConfirm,
		cbDeleteCancel,
	}
}

func authMenuKeyboard() [][]string {
	return [][]string{
		{btnRegister, btnLogin},
		{btnResetPassword},
	}
}

func managementMenuKeyboard() [][]string {
	return [][]string{
		{btnClients},
		{btnProducts, btnSales},
		{btnLogout},
	}
}

func flatMenuKeyboard() [][]string {
	return [][]string{
		{btnRegister, btnLogin},
		{btnResetPassword},
		{btnClients},
		{btnProducts, btnSales},
		{btnLogout},
	}
}

func clientSubmenuKeyboard() [][]string {
	return [][]string{
		{btnClientLookup},
		{btnFilterRoute, btnFilterCategory, btnFilterCity},
		{btnClientAdd, btnClientModify, btnClientDelete},
		{btnBackMainMenu},
	}
}

func clientActionsKeyboard() [][]string {
	return [][]string{
		{btnClientRecord, btnCreateSale},
		{btnClientModify, btnClientDelete},
		{btnBackClientsMenu},
	}
}

func clientModifyFieldKeyboard() [][]string {
	return [][]string{
		{"Nombre", "Ciudad"},
		{"Ruta", "Categoría"},
		{"Contacto", "Teléfono"},
		{"Dirección"},
		{btnCancel},
	}
}

func productSubmenuKeyboard() [][]string {
	return [][]string{
		{btnProductAdd, btnProductLookup},
		{btnBackMainMenu},
	}
}

func productActionsKeyboard() [][]string {
	return [][]string{
		{btnProductModify, btnProductDelete},
		{btnBackToList},
	}
}

func saleSubmenuKeyboard() [][]string {
	return [][]string{
		{btnSaleAdd},
		{btnSaleLookup},
		{btnSaleModify},
		{btnSaleDelete},
		{btnBackMainMenu},
	}
}

// mainMenu queues the main menu for the session. With the auth gate on,
// an unauthenticated user only sees the sign-in options.
func (f *flows) mainMenu(sess *conversation.Session, fx *conversation.Effects) conversation.State {
	switch {
	case !f.authGate:
		fx.SendKeyboard("Selecciona una opción:", flatMenuKeyboard())
	case sess.Authenticated:
		fx.SendKeyboard("Selecciona una opción:", managementMenuKeyboard())
	default:
		fx.SendKeyboard(
			"¡Hola! 👋\n\nSoy tu asistente de gestión. Por favor, elige una opción para comenzar:",
			authMenuKeyboard(),
		)
	}
	return conversation.StateSelectingAction
}

func clientSubmenu(fx *conversation.Effects) conversation.State {
	fx.SendKeyboard("Gestión de Clientes - Selecciona una opción:", clientSubmenuKeyboard())
	return conversation.StateClientSubmenu
}

func productSubmenu(fx *conversation.Effects) conversation.State {
	fx.SendKeyboard("Gestión de Productos - Selecciona una opción:", productSubmenuKeyboard())
	return conversation.StateProductSubmenu
}

func saleSubmenu(fx *conversation.Effects) conversation.State {
	fx.SendKeyboard("Gestión de Ventas - Selecciona una opción:", saleSubmenuKeyboard())
	return conversation.StateSaleSubmenu
}
