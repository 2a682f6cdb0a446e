package conversation

import "testing"

func TestStoreGetCreatesIdleSession(t *testing.T) {
	st := NewStore()
	s := st.Get(1)
	if s.State != StateIdle {
		t.Fatalf("fresh session state = %q", s.State)
	}
	if st.Active(1) {
		t.Fatal("idle session must not be active")
	}
	if s2 := st.Get(1); s2 != s {
		t.Fatal("Get must return the same session instance")
	}
}

func TestStorePeekDoesNotCreate(t *testing.T) {
	st := NewStore()
	if _, ok := st.Peek(7); ok {
		t.Fatal("Peek must not create sessions")
	}
	st.Get(7)
	if _, ok := st.Peek(7); !ok {
		t.Fatal("expected session after Get")
	}
}

func TestStoreClearKeepsWhitelistedFields(t *testing.T) {
	st := NewStore()
	s := st.Get(3)
	s.State = StateClientSubmenu
	s.TenantID = "tenant-a"
	s.Authenticated = true
	s.ClientDraft = &ClientDraft{Name: "Bodega"}
	s.Modify = &ModifyPending{Table: "companies"}

	st.Clear(3, DefaultKeep...)

	s = st.Get(3)
	if s.TenantID != "tenant-a" || !s.Authenticated {
		t.Fatal("whitelisted fields must survive Clear")
	}
	if s.ClientDraft != nil || s.Modify != nil {
		t.Fatal("drafts must be dropped by Clear")
	}
	if s.State != StateClientSubmenu {
		t.Fatalf("Clear must not touch state, got %q", s.State)
	}
}

func TestStoreClearWithoutKeepDropsEverything(t *testing.T) {
	st := NewStore()
	s := st.Get(4)
	s.TenantID = "tenant-b"
	s.Authenticated = true

	st.Clear(4)

	s = st.Get(4)
	if s.TenantID != "" || s.Authenticated {
		t.Fatal("empty keep list must drop auth fields")
	}
}

func TestStoreDestroy(t *testing.T) {
	st := NewStore()
	st.Get(5)
	st.Destroy(5)
	if _, ok := st.Peek(5); ok {
		t.Fatal("expected session to be gone")
	}
	// Destroying a missing session is a no-op.
	st.Destroy(5)
}

func TestStoreActive(t *testing.T) {
	st := NewStore()
	if st.Active(9) {
		t.Fatal("unknown chat must not be active")
	}
	st.Get(9)
	st.SetState(9, StateLoginEmail)
	if !st.Active(9) {
		t.Fatal("session outside idle must be active")
	}
	st.SetState(9, StateIdle)
	if st.Active(9) {
		t.Fatal("idle session must not be active")
	}
}

func TestSessionResetFlows(t *testing.T) {
	s := &Session{
		State:          StateSaleConfirm,
		TenantID:       "tenant-c",
		Authenticated:  true,
		SaleDraft:      &SaleDraft{ClientName: "Bodega"},
		Selection:      &Selection{},
		SelectedClient: &SelectedRef{ID: "id-1"},
	}
	s.ResetFlows()
	if s.SaleDraft != nil || s.Selection != nil || s.SelectedClient != nil {
		t.Fatal("ResetFlows must drop flow fields")
	}
	if s.TenantID != "tenant-c" || !s.Authenticated || s.State != StateSaleConfirm {
		t.Fatal("ResetFlows must not touch auth or state")
	}
}

func TestSessionActivePending(t *testing.T) {
	s := &Session{}
	if got := s.ActivePending(); len(got) != 0 {
		t.Fatalf("fresh session pending = %v", got)
	}
	s.ClientDraft = &ClientDraft{Awaiting: ClientFieldName}
	s.Modify = &ModifyPending{Stage: ModifyAwaitingValue}
	if got := s.ActivePending(); len(got) != 2 {
		t.Fatalf("expected two pending ops, got %v", got)
	}
}
