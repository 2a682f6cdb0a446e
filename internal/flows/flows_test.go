package flows

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/crmerr"
	"github.com/fakto/crmbot/internal/supabase"
)

// fakeStore scripts per-table-and-op responses and records every
// executed query for inspection.
type fakeStore struct {
	responses map[string][]fakeResponse
	calls     []*fakeQuery
}

type fakeResponse struct {
	result *supabase.Result
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{responses: make(map[string][]fakeResponse)}
}

func (fs *fakeStore) respond(table, op string, result *supabase.Result, err error) {
	key := table + "/" + op
	fs.responses[key] = append(fs.responses[key], fakeResponse{result: result, err: err})
}

func (fs *fakeStore) Table(name string) supabase.Query {
	return &fakeQuery{store: fs, table: name, op: "select"}
}

// lastCall returns the most recent executed query for a table and op.
func (fs *fakeStore) lastCall(table, op string) *fakeQuery {
	for i := len(fs.calls) - 1; i >= 0; i-- {
		if fs.calls[i].table == table && fs.calls[i].op == op {
			return fs.calls[i]
		}
	}
	return nil
}

type fakeQuery struct {
	store   *fakeStore
	table   string
	op      string
	columns string
	body    map[string]any
	filters map[string]any
	single  bool
}

func (q *fakeQuery) Select(columns string) supabase.Query {
	q.op = "select"
	q.columns = columns
	return q
}

func (q *fakeQuery) Insert(record map[string]any) supabase.Query {
	q.op = "insert"
	q.body = record
	return q
}

func (q *fakeQuery) Update(fields map[string]any) supabase.Query {
	q.op = "update"
	q.body = fields
	return q
}

func (q *fakeQuery) Delete() supabase.Query {
	q.op = "delete"
	return q
}

func (q *fakeQuery) Eq(column string, value any) supabase.Query {
	if q.filters == nil {
		q.filters = make(map[string]any)
	}
	q.filters[column] = value
	return q
}

func (q *fakeQuery) Like(column, pattern string) supabase.Query {
	return q.Eq(column, "like:"+pattern)
}

func (q *fakeQuery) Gt(column string, value any) supabase.Query {
	return q.Eq(column, fmt.Sprintf("gt:%v", value))
}

func (q *fakeQuery) Single() supabase.Query {
	q.single = true
	return q
}

func (q *fakeQuery) Execute(ctx context.Context) (*supabase.Result, error) {
	q.store.calls = append(q.store.calls, q)
	key := q.table + "/" + q.op
	queue := q.store.responses[key]
	if len(queue) == 0 {
		return &supabase.Result{}, nil
	}
	next := queue[0]
	q.store.responses[key] = queue[1:]
	if next.result == nil {
		return &supabase.Result{}, next.err
	}
	return next.result, next.err
}

// fakeAuth implements Authenticator with overridable call sites.
type fakeAuth struct {
	createUser     func(email, password string) (*supabase.User, error)
	signIn         func(email, password string) (*supabase.AuthSession, error)
	sendRecovery   func(email string) error
	verifyToken    func(token string) (*supabase.User, error)
	updatePassword func(token, password string) error
}

func (fa *fakeAuth) AdminCreateUser(_ context.Context, email, password string) (*supabase.User, error) {
	if fa.createUser == nil {
		return &supabase.User{ID: "auth-1", Email: email}, nil
	}
	return fa.createUser(email, password)
}

func (fa *fakeAuth) SignIn(_ context.Context, email, password string) (*supabase.AuthSession, error) {
	if fa.signIn == nil {
		return &supabase.AuthSession{AccessToken: "at", User: supabase.User{ID: "auth-1", Email: email}}, nil
	}
	return fa.signIn(email, password)
}

func (fa *fakeAuth) SendRecovery(_ context.Context, email string) error {
	if fa.sendRecovery == nil {
		return nil
	}
	return fa.sendRecovery(email)
}

func (fa *fakeAuth) VerifyToken(_ context.Context, token string) (*supabase.User, error) {
	if fa.verifyToken == nil {
		return &supabase.User{ID: "auth-1"}, nil
	}
	return fa.verifyToken(token)
}

func (fa *fakeAuth) UpdatePassword(_ context.Context, token, password string) error {
	if fa.updatePassword == nil {
		return nil
	}
	return fa.updatePassword(token, password)
}

// harness bundles a registered rule set with its fakes and a session.
type harness struct {
	rules *conversation.RuleSet
	store *fakeStore
	auth  *fakeAuth
	sess  *conversation.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rules: conversation.NewRuleSet(),
		store: newFakeStore(),
		auth:  &fakeAuth{},
		sess:  &conversation.Session{State: conversation.StateIdle},
	}
	Register(h.rules, Deps{
		Store:         h.store,
		Auth:          h.auth,
		DefaultTenant: "tenant-default",
		AuthGate:      true,
	})
	return h
}

// dispatch resolves and runs one event the way the engine would,
// including the state bookkeeping on the session.
func (h *harness) dispatch(t *testing.T, ev conversation.Event) *conversation.Effects {
	t.Helper()
	handler, ok := h.rules.Resolve(h.sess.State, ev)
	if !ok {
		t.Fatalf("no rule matched event %+v in state %s", ev, h.sess.State)
	}
	fx := &conversation.Effects{}
	next, err := handler(context.Background(), ev, h.sess, fx)
	_ = err
	if next != "" {
		h.sess.State = next
	}
	return fx
}

func (h *harness) signedIn(tenant string) {
	h.sess.Authenticated = true
	h.sess.TenantID = tenant
}

func texts(fx *conversation.Effects) []string {
	msgs := fx.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func containsText(fx *conversation.Effects, want string) bool {
	for _, text := range texts(fx) {
		if strings.Contains(text, want) {
			return true
		}
	}
	return false
}

func TestEveryStateHasRules(t *testing.T) {
	h := newHarness(t)
	for _, state := range conversation.AllStates {
		if !h.rules.HasRules(state) {
			t.Errorf("state %s has no rules", state)
		}
	}
}

func TestStartShowsAuthMenuWhenSignedOut(t *testing.T) {
	h := newHarness(t)
	fx := h.dispatch(t, conversation.CommandEvent("/start"))
	if h.sess.State != conversation.StateSelectingAction {
		t.Fatalf("state = %s", h.sess.State)
	}
	msgs := fx.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "¡Hola!") {
		t.Fatalf("unexpected greeting: %v", texts(fx))
	}
	if len(msgs[0].Keyboard) != 2 {
		t.Fatalf("expected the sign-in keyboard, got %v", msgs[0].Keyboard)
	}
}

func TestAuthGateBlocksManagement(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSelectingAction

	fx := h.dispatch(t, conversation.TextEvent("Gestión de Clientes"))
	if !containsText(fx, "No estás autenticado") {
		t.Fatalf("expected gate message, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateSelectingAction {
		t.Fatalf("state = %s", h.sess.State)
	}
}

func TestManagementOpensWhenSignedIn(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSelectingAction
	h.signedIn("tenant-a")

	h.dispatch(t, conversation.TextEvent("Gestión de Clientes"))
	if h.sess.State != conversation.StateClientSubmenu {
		t.Fatalf("state = %s", h.sess.State)
	}
}

func TestRegisterDuplicateEmailRestartsAtUsername(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSelectingAction

	h.dispatch(t, conversation.TextEvent("Registrarse"))
	h.dispatch(t, conversation.TextEvent("María"))
	h.dispatch(t, conversation.TextEvent("García"))
	h.dispatch(t, conversation.TextEvent("maria"))
	h.dispatch(t, conversation.TextEvent("maria@example.com"))

	h.auth.createUser = func(email, password string) (*supabase.User, error) {
		return nil, &crmerr.AuthError{Kind: crmerr.AuthDuplicateEmail, Msg: "already registered"}
	}
	fx := h.dispatch(t, conversation.TextEvent("secret123"))

	if !containsText(fx, "ya ha sido registrado") {
		t.Fatalf("expected duplicate email message, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateRegisterUsername {
		t.Fatalf("state = %s", h.sess.State)
	}
	if h.sess.Register == nil || h.sess.Register.FirstName != "María" {
		t.Fatal("name fields must survive the restart")
	}
}

func TestRegisterSuccessInsertsProfile(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateRegisterPassword
	h.sess.Register = &conversation.RegisterDraft{
		FirstName: "María",
		LastName:  "García",
		Username:  "maria",
		Email:     "maria@example.com",
	}

	fx := h.dispatch(t, conversation.TextEvent("secret123"))
	if !containsText(fx, "Registro casi completo") {
		t.Fatalf("expected success message, got %v", texts(fx))
	}

	call := h.store.lastCall("users", "insert")
	if call == nil {
		t.Fatal("expected a profile insert")
	}
	if call.body["username"] != "maria" || call.body["tenant_id"] != "tenant-default" {
		t.Fatalf("unexpected profile row: %v", call.body)
	}
	if h.sess.Register != nil {
		t.Fatal("register draft must be dropped on success")
	}
}

func TestLoginFailureRestartsAtEmail(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateLoginPassword
	h.sess.Login = &conversation.LoginDraft{Email: "maria@example.com"}
	h.auth.signIn = func(email, password string) (*supabase.AuthSession, error) {
		return nil, &crmerr.AuthError{Kind: crmerr.AuthBadCredentials, Msg: "invalid login"}
	}

	fx := h.dispatch(t, conversation.TextEvent("wrong"))
	if !containsText(fx, "Error de autenticación") {
		t.Fatalf("expected auth error, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateLoginEmail {
		t.Fatalf("state = %s", h.sess.State)
	}
	if h.sess.Authenticated {
		t.Fatal("failed login must not authenticate")
	}
}

func TestLoginSuccessLoadsTenant(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateLoginPassword
	h.sess.Login = &conversation.LoginDraft{Email: "maria@example.com"}
	h.store.respond("users", "select", &supabase.Result{
		Rows: []supabase.Row{{"tenant_id": "tenant-a", "username": "maria"}},
	}, nil)

	fx := h.dispatch(t, conversation.TextEvent("secret123"))
	if !containsText(fx, "Sesión iniciada correctamente para maria") {
		t.Fatalf("expected welcome, got %v", texts(fx))
	}
	if !h.sess.Authenticated || h.sess.TenantID != "tenant-a" {
		t.Fatalf("session identity = %v / %s", h.sess.Authenticated, h.sess.TenantID)
	}
	if h.sess.State != conversation.StateSelectingAction {
		t.Fatalf("state = %s", h.sess.State)
	}
	if h.store.lastCall("users", "update") == nil {
		t.Fatal("expected a last_login stamp")
	}
}

func TestResetInvalidURLKeepsAsking(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateResetToken
	h.sess.Reset = &conversation.ResetDraft{Email: "maria@example.com"}

	fx := h.dispatch(t, conversation.TextEvent("not a url"))
	if !containsText(fx, "no parece válida") {
		t.Fatalf("expected re-prompt, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateResetToken {
		t.Fatalf("state = %s", h.sess.State)
	}

	fx = h.dispatch(t, conversation.TextEvent("https://proj.supabase.co/#access_token=tok&type=recovery"))
	if h.sess.State != conversation.StateResetNewPassword {
		t.Fatalf("state = %s", h.sess.State)
	}
	if h.sess.Reset.AccessToken != "tok" {
		t.Fatalf("token = %s", h.sess.Reset.AccessToken)
	}
	_ = fx
}

func TestResetCompleteDropsTokens(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateResetNewPassword
	h.sess.Reset = &conversation.ResetDraft{AccessToken: "tok"}

	var updated string
	h.auth.updatePassword = func(token, password string) error {
		updated = password
		return nil
	}
	fx := h.dispatch(t, conversation.TextEvent("new-secret"))
	if !containsText(fx, "actualizada con éxito") {
		t.Fatalf("expected success, got %v", texts(fx))
	}
	if updated != "new-secret" {
		t.Fatalf("password = %s", updated)
	}
	if h.sess.Reset != nil {
		t.Fatal("recovery tokens must not survive the flow")
	}
}

func TestLogoutEndsConversation(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSelectingAction
	h.signedIn("tenant-a")

	fx := h.dispatch(t, conversation.TextEvent("Cerrar Sesión"))
	if !containsText(fx, "Has cerrado la sesión") {
		t.Fatalf("expected goodbye, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateEnd {
		t.Fatalf("state = %s", h.sess.State)
	}
	if h.sess.Authenticated || h.sess.TenantID != "" {
		t.Fatal("logout must drop the identity")
	}
}

func TestCancelFallbackFromAnyState(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSaleQuantity
	h.sess.SaleDraft = &conversation.SaleDraft{ClientName: "Bodega"}

	fx := h.dispatch(t, conversation.CommandEvent("/cancel"))
	if !containsText(fx, "Acción cancelada") {
		t.Fatalf("expected cancel message, got %v", texts(fx))
	}
	if h.sess.SaleDraft != nil {
		t.Fatal("cancel must drop the draft")
	}
	if h.sess.State != conversation.StateSelectingAction {
		t.Fatalf("state = %s", h.sess.State)
	}
}

func TestUnknownCommandMidFlowInforms(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateRegisterEmail
	h.sess.Register = &conversation.RegisterDraft{FirstName: "María"}

	fx := h.dispatch(t, conversation.CommandEvent("/loquesea"))
	if !containsText(fx, "no he entendido esa orden") {
		t.Fatalf("expected unknown message, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateRegisterEmail {
		t.Fatalf("state = %s", h.sess.State)
	}
	if h.sess.Register == nil || h.sess.Register.FirstName != "María" {
		t.Fatal("a stray command must not disturb the open flow")
	}
}

func TestUnknownTextFallback(t *testing.T) {
	h := newHarness(t)
	h.sess.State = conversation.StateSelectingAction

	fx := h.dispatch(t, conversation.TextEvent("qwerty"))
	if !containsText(fx, "no he entendido esa orden") {
		t.Fatalf("expected unknown message, got %v", texts(fx))
	}
	if h.sess.State != conversation.StateSelectingAction {
		t.Fatalf("state = %s", h.sess.State)
	}
}
