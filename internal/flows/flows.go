// Package flows binds the conversation rule set: the Spanish-language
// CRM dialogs for authentication, client, product and sale management.
package flows

import (
	"context"

	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/supabase"
)

// Authenticator is the auth surface the flows depend on, implemented by
// supabase.AuthClient and by test fakes.
type Authenticator interface {
	AdminCreateUser(ctx context.Context, email, password string) (*supabase.User, error)
	SignIn(ctx context.Context, email, password string) (*supabase.AuthSession, error)
	SendRecovery(ctx context.Context, email string) error
	VerifyToken(ctx context.Context, accessToken string) (*supabase.User, error)
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}

// Deps carries everything the flow handlers need.
type Deps struct {
	Store supabase.Store
	Auth  Authenticator
	// DefaultTenant is the tenant assigned to fresh registrations.
	DefaultTenant string
	// AuthGate hides the management menus until the user has signed in.
	AuthGate bool
}

type flows struct {
	store    supabase.Store
	auth     Authenticator
	tenant   string
	authGate bool
}

// Register installs every conversation rule on the given rule set. Rule
// order within a state is significant: specific button labels match
// before the free-text collectors.
func Register(rs *conversation.RuleSet, d Deps) {
	f := &flows{
		store:    d.Store,
		auth:     d.Auth,
		tenant:   d.DefaultTenant,
		authGate: d.AuthGate,
	}

	// Main menu.
	rs.Handle(conversation.StateIdle, conversation.Command("/start"), f.start)
	rs.Handle(conversation.StateIdle, conversation.AnyText(), f.start)
	rs.Handle(conversation.StateSelectingAction, conversation.Exact(btnRegister), f.registerStart)
	rs.Handle(conversation.StateSelectingAction, conversation.Exact(btnLogin), f.loginStart)
	rs.Handle(conversation.StateSelectingAction, conversation.Exact(btnResetPassword), f.resetStart)
	rs.Handle(conversation.StateSelectingAction, conversation.Exact(btnClients), f.requireAuth(f.clientSubmenu))
	rs.Handle(conversation.StateSelectingAction, conversation.Exact(btnProducts), f.requireAuth(f.productSubmenu))
	rs.Handle(conversation.StateSelectingAction, conversation.Exact(btnSales), f.requireAuth(f.saleSubmenu))
	rs.Handle(conversation.StateSelectingAction, conversation.Exact(btnLogout), f.logout)

	// Registration.
	rs.Handle(conversation.StateRegisterFirstName, conversation.AnyText(), f.registerFirstName)
	rs.Handle(conversation.StateRegisterLastName, conversation.AnyText(), f.registerLastName)
	rs.Handle(conversation.StateRegisterUsername, conversation.AnyText(), f.registerUsername)
	rs.Handle(conversation.StateRegisterEmail, conversation.AnyText(), f.registerEmail)
	rs.Handle(conversation.StateRegisterPassword, conversation.AnyText(), f.registerComplete)

	// Login.
	rs.Handle(conversation.StateLoginEmail, conversation.AnyText(), f.loginEmail)
	rs.Handle(conversation.StateLoginPassword, conversation.AnyText(), f.loginComplete)

	// Password recovery.
	rs.Handle(conversation.StateResetEmail, conversation.AnyText(), f.resetEmail)
	rs.Handle(conversation.StateResetToken, conversation.AnyText(), f.resetToken)
	rs.Handle(conversation.StateResetNewPassword, conversation.AnyText(), f.resetComplete)

	// Client management.
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnClientLookup), f.clientLookup)
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnFilterRoute), f.clientFilter("route"))
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnFilterCategory), f.clientFilter("category"))
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnFilterCity), f.clientFilter("city"))
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnClientRecord), f.clientRecord)
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnClientAdd), f.clientAddStart)
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnClientDelete), f.clientDeleteStart)
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnClientModify), f.clientModifyStart)
	rs.Handle(conversation.StateClientSubmenu, conversation.Exact(btnCreateSale), f.saleStart)
	rs.Handle(conversation.StateClientSubmenu,
		conversation.Exact("Nombre", "Ciudad", "Ruta", "Categoría", "Contacto", "Teléfono", "Dirección", btnCancel),
		f.modifyField(clientFieldColumns))
	rs.Handle(conversation.StateClientSubmenu,
		conversation.ExactFold("Sí", "Si", "S", "No", "N"),
		f.clientYesNo)
	rs.Handle(conversation.StateClientSubmenu,
		conversation.Callback(cbDeleteConfirm, cbDeleteCancel),
		f.clientDeleteConfirm)
	rs.Handle(conversation.StateClientSubmenu, conversation.AnyText(), f.clientInput)

	rs.Handle(conversation.StateClientFilter, conversation.Callback(cbClientBack), f.clientFilterBack)
	rs.Handle(conversation.StateClientFilter, conversation.Callback(cbClientValue), f.clientFilterValue)

	rs.Handle(conversation.StateViewingClient, conversation.Exact(btnBackClientsMenu), f.clientSubmenu)
	rs.Handle(conversation.StateViewingClient, conversation.AnyText(), f.clientSelected)

	// Product management.
	rs.Handle(conversation.StateProductSubmenu, conversation.Exact(btnProductAdd), f.productAddStart)
	rs.Handle(conversation.StateProductSubmenu, conversation.Exact(btnProductLookup, btnBackToList), f.productLookup)
	rs.Handle(conversation.StateProductSubmenu, conversation.Exact(btnProductModify), f.productModifyStart)
	rs.Handle(conversation.StateProductSubmenu, conversation.Exact(btnProductDelete), f.productDeleteStart)
	rs.Handle(conversation.StateProductSubmenu,
		conversation.Exact("SKU", "Nombre", "Descripción", "Categoría", "Precio", "Stock", btnCancel),
		f.modifyField(productFieldColumns))
	rs.Handle(conversation.StateProductSubmenu,
		conversation.ExactFold("Sí", "Si", "S", "No", "N"),
		f.productYesNo)
	rs.Handle(conversation.StateProductSubmenu,
		conversation.Callback(cbDeleteConfirm, cbDeleteCancel),
		f.productDeleteConfirm)
	rs.Handle(conversation.StateProductSubmenu, conversation.AnyText(), f.productInput)

	rs.Handle(conversation.StateProductFilter, conversation.Callback(cbFilterCancel), f.productFilterCancel)
	rs.Handle(conversation.StateProductFilter, conversation.Callback(cbProductFilter), f.productFilterSelect)
	rs.Handle(conversation.StateProductFilter, conversation.Callback(cbProductValue), f.productFilterValue)

	rs.Handle(conversation.StateViewingProduct, conversation.AnyText(), f.productDetail)

	// Sales.
	rs.Handle(conversation.StateSaleSubmenu, conversation.Exact(btnSaleAdd), f.saleStart)
	rs.Handle(conversation.StateSaleSubmenu, conversation.Exact(btnSaleLookup), f.saleList)
	rs.Handle(conversation.StateSaleSubmenu, conversation.Exact(btnSaleModify, btnSaleDelete), f.salePending)
	rs.Handle(conversation.StateSaleProduct, conversation.AnyText(), f.saleProduct)
	rs.Handle(conversation.StateSaleQuantity, conversation.AnyText(), f.saleQuantity)
	rs.Handle(conversation.StateSaleDate, conversation.AnyText(), f.saleDate)
	rs.Handle(conversation.StateSaleConfirm, conversation.AnyText(), f.saleConfirm)

	// Shared fallbacks, consulted from every state in this order.
	rs.Fallback(conversation.Exact(btnBackMainMenu), f.toMainMenu)
	rs.Fallback(conversation.Exact(btnBackClientsMenu), f.clientSubmenu)
	rs.Fallback(conversation.Exact(btnBackProductsMenu), f.productSubmenu)
	rs.Fallback(conversation.Command("/cancel"), f.cancel)
	rs.Fallback(conversation.Exact(btnCancel), f.cancel)
	rs.Fallback(conversation.Command("/start"), f.start)
	rs.Fallback(conversation.Command("/resetpassword"), f.resetStart)
	rs.Fallback(conversation.AnyCommand(), f.unknown)
	rs.Fallback(conversation.AnyText(), f.unknown)
	rs.Fallback(conversation.AnyCallback(), f.ignoreCallback)
}

// requireAuth wraps a management entry so the gate, when enabled, sends
// the user back to sign in first.
func (f *flows) requireAuth(h conversation.HandlerFunc) conversation.HandlerFunc {
	return func(ctx context.Context, ev conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
		if f.authGate && !sess.Authenticated {
			fx.Send("Error: No estás autenticado. Por favor, inicia sesión.")
			return f.mainMenu(sess, fx), nil
		}
		return h(ctx, ev, sess, fx)
	}
}

func (f *flows) start(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.ResetFlows()
	return f.mainMenu(sess, fx), nil
}

func (f *flows) toMainMenu(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.ResetFlows()
	return f.mainMenu(sess, fx), nil
}

func (f *flows) logout(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.ResetFlows()
	sess.Authenticated = false
	sess.TenantID = ""
	fx.SendRemoveKeyboard("Has cerrado la sesión. ¡Hasta pronto!")
	return conversation.StateEnd, nil
}

func (f *flows) cancel(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	sess.ResetFlows()
	fx.SendRemoveKeyboard("Acción cancelada. Volviendo al menú principal.")
	return f.mainMenu(sess, fx), nil
}

func (f *flows) unknown(_ context.Context, _ conversation.Event, sess *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	fx.Send("Lo siento, no he entendido esa orden. Por favor, usa los botones del menú.")
	return sess.State, nil
}

func (f *flows) ignoreCallback(_ context.Context, _ conversation.Event, sess *conversation.Session, _ *conversation.Effects) (conversation.State, error) {
	return sess.State, nil
}

func (f *flows) clientSubmenu(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	return clientSubmenu(fx), nil
}

func (f *flows) productSubmenu(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	return productSubmenu(fx), nil
}

func (f *flows) saleSubmenu(_ context.Context, _ conversation.Event, _ *conversation.Session, fx *conversation.Effects) (conversation.State, error) {
	return saleSubmenu(fx), nil
}
