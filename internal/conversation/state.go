package conversation

// State identifies a node of the conversation graph. The set is closed:
// every state other than StateIdle has a registered rule list, and
// StateIdle is the intentionally terminal resting point between
// conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"

	// StateSelectingAction is the main menu.
	StateSelectingAction State = "selecting_action"

	// Registration flow.
	StateRegisterFirstName State = "register_first_name"
	StateRegisterLastName  State = "register_last_name"
	StateRegisterUsername  State = "register_username"
	StateRegisterEmail     State = "register_email"
	StateRegisterPassword  State = "register_password"

	// Login flow.
	StateLoginEmail    State = "login_email"
	StateLoginPassword State = "login_password"

	// Password reset flow.
	StateResetEmail       State = "reset_email"
	StateResetToken       State = "reset_token"
	StateResetNewPassword State = "reset_new_password"

	// Entity management.
	StateClientSubmenu  State = "client_submenu"
	StateProductSubmenu State = "product_submenu"
	StateSaleSubmenu    State = "sale_submenu"
	StateClientFilter   State = "client_filter"
	StateProductFilter  State = "product_filter"
	StateViewingClient  State = "viewing_client"
	StateViewingProduct State = "viewing_product"

	// Sale creation flow.
	StateSaleProduct  State = "sale_product"
	StateSaleQuantity State = "sale_quantity"
	StateSaleDate     State = "sale_date"
	StateSaleConfirm  State = "sale_confirm"

	// StateEnd is not a resting state: a handler returns it to signal
	// that the conversation is finished and the session must be torn down.
	StateEnd State = "end"
)

// AllStates lists every resting state of the graph, used by wiring
// checks to assert each one has a registered rule list.
var AllStates = []State{
	StateIdle,
	StateSelectingAction,
	StateRegisterFirstName,
	StateRegisterLastName,
	StateRegisterUsername,
	StateRegisterEmail,
	StateRegisterPassword,
	StateLoginEmail,
	StateLoginPassword,
	StateResetEmail,
	StateResetToken,
	StateResetNewPassword,
	StateClientSubmenu,
	StateProductSubmenu,
	StateSaleSubmenu,
	StateClientFilter,
	StateProductFilter,
	StateViewingClient,
	StateViewingProduct,
	StateSaleProduct,
	StateSaleQuantity,
	StateSaleDate,
	StateSaleConfirm,
}
