package conversation

// RegisterDraft accumulates the fields of an in-flight registration.
type RegisterDraft struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
}

// LoginDraft holds the email of an in-flight sign-in.
type LoginDraft struct {
	Email string
}

// ResetDraft holds the progress of a password recovery.
type ResetDraft struct {
	Email        string
	AccessToken  string
	RefreshToken string
}

// ClientField names the field a client create-flow is currently asking for.
type ClientField string

const (
	ClientFieldNone     ClientField = ""
	ClientFieldName     ClientField = "name"
	ClientFieldCity     ClientField = "city"
	ClientFieldRoute    ClientField = "route"
	ClientFieldCategory ClientField = "category"
	ClientFieldContact  ClientField = "contact"
	ClientFieldPhone    ClientField = "phone"
	ClientFieldAddress  ClientField = "address"
	ClientFieldConfirm  ClientField = "confirm"
)

// ClientDraft is an in-flight client record plus the step being asked.
type ClientDraft struct {
	Name     string
	City     string
	Route    string
	Category string
	Contact  string
	Phone    string
	Address  string
	Awaiting ClientField
}

// ProductField names the field a product create-flow is currently asking for.
type ProductField string

const (
	ProductFieldNone        ProductField = ""
	ProductFieldSKU         ProductField = "sku"
	ProductFieldName        ProductField = "p_name"
	ProductFieldDescription ProductField = "description"
	ProductFieldCategory    ProductField = "p_category"
	ProductFieldPrice       ProductField = "price"
	ProductFieldStock       ProductField = "stock"
	ProductFieldConfirm     ProductField = "p_confirm"
)

// ProductDraft is an in-flight product record plus the step being asked.
type ProductDraft struct {
	SKU         int
	Name        string
	Description string
	Category    string
	Price       float64
	Stock       int
	Awaiting    ProductField
}

// ModifyStage is the pending-operation stage of a modify sub-flow.
type ModifyStage int

const (
	// ModifyAwaitingField waits for the user to pick a field to edit.
	ModifyAwaitingField ModifyStage = iota + 1
	// ModifyAwaitingValue waits for the replacement value.
	ModifyAwaitingValue
	// ModifyAwaitingConfirm waits for the yes/no confirmation.
	ModifyAwaitingConfirm
)

// ModifyPending is the nested sub-state of a modify chain. At most one
// stage is active per session at any time.
type ModifyPending struct {
	Table      string
	RecordID   string
	Stage      ModifyStage
	Column     string
	FieldLabel string
	Value      string
}

// Selection caches the label-to-id mapping built when a filtered result
// set is rendered. It is replaced wholesale on every new result set so a
// stale label can never resolve to an id from an earlier filter.
type Selection struct {
	Table  string
	Field  string
	Value  string
	Labels map[string]string
}

// ProductSummary is one row of a filtered product listing.
type ProductSummary struct {
	ID          string
	SKU         int
	Name        string
	Description string
	Category    string
	Price       float64
	Stock       int
}

// SelectedRef identifies the entity currently acted upon.
type SelectedRef struct {
	ID   string
	Name string
}

// SaleDraft accumulates an in-flight sale for a selected client.
type SaleDraft struct {
	ClientID    string
	ClientName  string
	ProductID   string
	ProductName string
	SKU         int
	Quantity    int
	DateUnix    int64
}

// Session is the per-chat conversation record: the current state, the
// identity fields that survive sub-flow resets, and one optional draft
// per sub-flow. A handler reading a draft another flow owns finds nil.
type Session struct {
	State         State
	TenantID      string
	Authenticated bool

	Register *RegisterDraft
	Login    *LoginDraft
	Reset    *ResetDraft

	ClientDraft  *ClientDraft
	ProductDraft *ProductDraft
	SaleDraft    *SaleDraft
	Modify       *ModifyPending

	Selection       *Selection
	ProductResults  []ProductSummary
	SelectedClient  *SelectedRef
	SelectedProduct *SelectedRef
}

// ResetFlows drops every draft and cached result set in place, leaving
// the identity fields untouched. Handlers use it when a sub-flow ends.
func (s *Session) ResetFlows() {
	s.Register = nil
	s.Login = nil
	s.Reset = nil
	s.ClientDraft = nil
	s.ProductDraft = nil
	s.SaleDraft = nil
	s.Modify = nil
	s.Selection = nil
	s.ProductResults = nil
	s.SelectedClient = nil
	s.SelectedProduct = nil
}

// ActivePending names every awaiting stage currently set. The engine
// invariant is that the result never holds more than one entry.
func (s *Session) ActivePending() []string {
	var active []string
	if s.ClientDraft != nil && s.ClientDraft.Awaiting != ClientFieldNone {
		active = append(active, "client_draft:"+string(s.ClientDraft.Awaiting))
	}
	if s.ProductDraft != nil && s.ProductDraft.Awaiting != ProductFieldNone {
		active = append(active, "product_draft:"+string(s.ProductDraft.Awaiting))
	}
	if s.Modify != nil {
		switch s.Modify.Stage {
		case ModifyAwaitingField:
			active = append(active, "modify:field")
		case ModifyAwaitingValue:
			active = append(active, "modify:value")
		case ModifyAwaitingConfirm:
			active = append(active, "modify:confirm")
		}
	}
	return active
}

// ClearModify drops the whole modify chain atomically.
func (s *Session) ClearModify() {
	s.Modify = nil
}
