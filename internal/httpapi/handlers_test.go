package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"epicrm.org/internal/auth"
	"epicrm.org/internal/crm"
)

// stubStore backs the API with maps so handler tests run without postgres.
// Like the postgres store it doubles as identity store and ownership
// resolver.
type stubStore struct {
	nextID    int64
	users     map[int64]crm.User
	clients   map[int64]crm.Client
	contracts map[int64]crm.Contract
	events    map[int64]crm.Event
}

func newStubStore() *stubStore {
	return &stubStore{
		users:     map[int64]crm.User{},
		clients:   map[int64]crm.Client{},
		contracts: map[int64]crm.Contract{},
		events:    map[int64]crm.Event{},
	}
}

func (m *stubStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *stubStore) IdentityByEmail(_ context.Context, email string) (auth.Identity, error) {
	for _, u := range m.users {
		if u.Email == email {
			return auth.Identity{
				ID:           u.ID,
				FullName:     u.FullName,
				Email:        u.Email,
				PasswordHash: u.PasswordHash,
				Department:   u.Department,
			}, nil
		}
	}
	return auth.Identity{}, auth.ErrNotFound
}

func (m *stubStore) ResolveOwnership(_ context.Context, kind auth.ResourceKind, id int64) (auth.Ownership, error) {
	ownership := auth.Ownership{Kind: kind, ID: id}
	switch kind {
	case auth.ResourceClient:
		c, ok := m.clients[id]
		if !ok {
			return auth.Ownership{}, auth.ErrNotFound
		}
		ownership.OwnerID = c.SalesContactID
	case auth.ResourceContract:
		co, ok := m.contracts[id]
		if !ok {
			return auth.Ownership{}, auth.ErrNotFound
		}
		ownership.OwnerID = m.clients[co.ClientID].SalesContactID
	case auth.ResourceEvent:
		ev, ok := m.events[id]
		if !ok {
			return auth.Ownership{}, auth.ErrNotFound
		}
		co := m.contracts[ev.ContractID]
		ownership.OwnerID = m.clients[co.ClientID].SalesContactID
		ownership.AssigneeID = ev.SupportContactID
	default:
		return auth.Ownership{}, auth.ErrInvalidInput
	}
	return ownership, nil
}

func (m *stubStore) CreateUser(_ context.Context, u crm.User) (crm.User, error) {
	u.ID = m.id()
	m.users[u.ID] = u
	return u, nil
}

func (m *stubStore) GetUser(_ context.Context, id int64) (crm.User, error) {
	u, ok := m.users[id]
	if !ok {
		return crm.User{}, crm.ErrNotFound
	}
	return u, nil
}

func (m *stubStore) ListUsers(context.Context) ([]crm.User, error) {
	var out []crm.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *stubStore) UpdateUser(_ context.Context, id int64, upd crm.UserUpdate) (crm.User, error) {
	u, ok := m.users[id]
	if !ok {
		return crm.User{}, crm.ErrNotFound
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Department != nil {
		u.Department = *upd.Department
	}
	m.users[id] = u
	return u, nil
}

func (m *stubStore) DeleteUser(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return crm.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *stubStore) CreateClient(_ context.Context, c crm.Client) (crm.Client, error) {
	c.ID = m.id()
	m.clients[c.ID] = c
	return c, nil
}

func (m *stubStore) GetClient(_ context.Context, id int64) (crm.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return crm.Client{}, crm.ErrNotFound
	}
	return c, nil
}

func (m *stubStore) ListClients(context.Context) ([]crm.Client, error) {
	var out []crm.Client
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, nil
}

func (m *stubStore) UpdateClient(_ context.Context, id int64, upd crm.ClientUpdate) (crm.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return crm.Client{}, crm.ErrNotFound
	}
	if upd.FullName != nil {
		c.FullName = *upd.FullName
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.Phone != nil {
		c.Phone = *upd.Phone
	}
	if upd.Enterprise != nil {
		c.Enterprise = *upd.Enterprise
	}
	m.clients[id] = c
	return c, nil
}

func (m *stubStore) DeleteClient(_ context.Context, id int64) error {
	if _, ok := m.clients[id]; !ok {
		return crm.ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

func (m *stubStore) CreateContract(_ context.Context, c crm.Contract) (crm.Contract, error) {
	c.ID = m.id()
	m.contracts[c.ID] = c
	return c, nil
}

func (m *stubStore) GetContract(_ context.Context, id int64) (crm.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return crm.Contract{}, crm.ErrNotFound
	}
	return c, nil
}

func (m *stubStore) ListContracts(context.Context) ([]crm.Contract, error) {
	var out []crm.Contract
	for _, c := range m.contracts {
		out = append(out, c)
	}
	return out, nil
}

func (m *stubStore) UpdateContract(_ context.Context, id int64, upd crm.ContractUpdate) (crm.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return crm.Contract{}, crm.ErrNotFound
	}
	if upd.Amount != nil {
		c.Amount = *upd.Amount
	}
	if upd.RemainingAmount != nil {
		c.RemainingAmount = *upd.RemainingAmount
	}
	if upd.Signed != nil {
		c.Signed = *upd.Signed
	}
	m.contracts[id] = c
	return c, nil
}

func (m *stubStore) DeleteContract(_ context.Context, id int64) error {
	if _, ok := m.contracts[id]; !ok {
		return crm.ErrNotFound
	}
	delete(m.contracts, id)
	return nil
}

func (m *stubStore) CreateEvent(_ context.Context, e crm.Event) (crm.Event, error) {
	e.ID = m.id()
	m.events[e.ID] = e
	return e, nil
}

func (m *stubStore) GetEvent(_ context.Context, id int64) (crm.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return crm.Event{}, crm.ErrNotFound
	}
	return e, nil
}

func (m *stubStore) ListEvents(context.Context) ([]crm.Event, error) {
	var out []crm.Event
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, nil
}

func (m *stubStore) UpdateEvent(_ context.Context, id int64, upd crm.EventUpdate) (crm.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return crm.Event{}, crm.ErrNotFound
	}
	if upd.Name != nil {
		e.Name = *upd.Name
	}
	if upd.Start != nil {
		e.Start = *upd.Start
	}
	if upd.End != nil {
		e.End = *upd.End
	}
	if upd.Location != nil {
		e.Location = *upd.Location
	}
	if upd.Attendees != nil {
		e.Attendees = *upd.Attendees
	}
	if upd.Notes != nil {
		e.Notes = *upd.Notes
	}
	m.events[id] = e
	return e, nil
}

func (m *stubStore) AssignEventSupport(_ context.Context, id, supportID int64) (crm.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return crm.Event{}, crm.ErrNotFound
	}
	e.SupportContactID = supportID
	m.events[id] = e
	return e, nil
}

func (m *stubStore) DeleteEvent(_ context.Context, id int64) error {
	if _, ok := m.events[id]; !ok {
		return crm.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

// apiFixture wires the full API over the stub store.
type apiFixture struct {
	api    *API
	server http.Handler
	store  *stubStore
	tokens map[string]string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := newStubStore()

	issuer, err := auth.NewTokenIssuer("handler-test-secret", "HS256")
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	authSvc, err := auth.NewService(store, store, issuer)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	crmSvc, err := crm.NewService(store, authSvc)
	if err != nil {
		t.Fatalf("crm service: %v", err)
	}

	api := New(authSvc, crmSvc, ReadyProbe{}, "test", Options{})
	fx := &apiFixture{
		api:    api,
		server: api.Handler(),
		store:  store,
		tokens: map[string]string{},
	}

	seed := []struct {
		key   string
		name  string
		email string
		dept  auth.Department
	}{
		{"commercial", "Clara Vendeuse", "clara@epicrm.test", auth.DepartmentCommercial},
		{"commercial2", "Karim Vendeur", "karim@epicrm.test", auth.DepartmentCommercial},
		{"support", "Sam Helper", "sam@epicrm.test", auth.DepartmentSupport},
		{"management", "Mona Directrice", "mona@epicrm.test", auth.DepartmentManagement},
	}
	for _, s := range seed {
		hash, err := auth.HashPassword("s3cret-" + s.key)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		u, err := store.CreateUser(context.Background(), crm.User{
			FullName:     s.name,
			Email:        s.email,
			PasswordHash: hash,
			Department:   s.dept,
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		token, _, err := issuer.Issue(auth.Identity{ID: u.ID, Department: u.Department})
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		fx.tokens[s.key] = token
	}
	return fx
}

func (fx *apiFixture) do(t *testing.T, method, path, tokenKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = fmt.Sprintf("10.9.%d.1:4000", len(fx.tokens))
	if tokenKey != "" {
		req.Header.Set("Authorization", "Bearer "+fx.tokens[tokenKey])
	}
	rr := httptest.NewRecorder()
	fx.server.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	fx := newAPIFixture(t)
	rr := fx.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["service"] != "epicrm-api" {
		t.Fatalf("unexpected service: %v", body["service"])
	}
}

func TestLogin(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "clara@epicrm.test",
		"password": "s3cret-commercial",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		Identity  struct {
			Email      string `json:"email"`
			Department string `json:"department"`
		} `json:"identity"`
	}
	decodeBody(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("expected token in response")
	}
	if resp.Identity.Department != "commercial" {
		t.Fatalf("unexpected department: %q", resp.Identity.Department)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Fatalf("token already expired: %v", resp.ExpiresAt)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	fx := newAPIFixture(t)

	for name, creds := range map[string]map[string]string{
		"wrong password": {"email": "clara@epicrm.test", "password": "nope"},
		"unknown email":  {"email": "ghost@epicrm.test", "password": "s3cret-commercial"},
	} {
		rr := fx.do(t, http.MethodPost, "/v1/auth/login", "", creds)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rr.Code)
		}
		var body map[string]any
		decodeBody(t, rr, &body)
		if body["error"] != "invalid credentials" {
			t.Fatalf("%s: expected uniform error message, got %v", name, body["error"])
		}
	}
}

func TestMissingBearerToken(t *testing.T) {
	fx := newAPIFixture(t)
	rr := fx.do(t, http.MethodGet, "/v1/clients", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestClientLifecycle(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodPost, "/v1/clients", "commercial", map[string]any{
		"full_name":  "Kevin Casey",
		"email":      "kevin@startup.io",
		"phone":      "+67812345678",
		"enterprise": "Cool Startup LLC",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc == "" {
		t.Fatal("expected Location header")
	}
	var created crm.Client
	decodeBody(t, rr, &created)
	if created.SalesContactID == 0 {
		t.Fatal("expected sales contact stamped from session")
	}

	// other departments can read
	rr = fx.do(t, http.MethodGet, fmt.Sprintf("/v1/clients/%d", created.ID), "support", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	// only the owner updates
	rr = fx.do(t, http.MethodPatch, fmt.Sprintf("/v1/clients/%d", created.ID), "commercial2", map[string]any{
		"phone": "+100",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rr.Code)
	}
	rr = fx.do(t, http.MethodPatch, fmt.Sprintf("/v1/clients/%d", created.ID), "commercial", map[string]any{
		"phone": "+100",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d: %s", rr.Code, rr.Body.String())
	}

	// support cannot create clients
	rr = fx.do(t, http.MethodPost, "/v1/clients", "support", map[string]any{
		"full_name": "X",
		"email":     "x@y.z",
		"phone":     "+1",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestUserManagementRequiresManagement(t *testing.T) {
	fx := newAPIFixture(t)

	payload := map[string]any{
		"full_name":  "New Hire",
		"email":      "hire@epicrm.test",
		"password":   "changeme-now",
		"department": "support",
	}
	rr := fx.do(t, http.MethodPost, "/v1/users", "commercial", payload)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for commercial, got %d", rr.Code)
	}
	rr = fx.do(t, http.MethodPost, "/v1/users", "management", payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for management, got %d: %s", rr.Code, rr.Body.String())
	}
	var created crm.User
	decodeBody(t, rr, &created)
	if created.ID == 0 {
		t.Fatal("expected user id")
	}

	rr = fx.do(t, http.MethodPost, "/v1/users", "management", map[string]any{
		"full_name":  "Bad Dept",
		"email":      "bad@epicrm.test",
		"password":   "changeme-now",
		"department": "gestion",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown department, got %d", rr.Code)
	}
}

func TestEventNotesAndAssign(t *testing.T) {
	fx := newAPIFixture(t)
	ctx := context.Background()

	client, _ := fx.store.CreateClient(ctx, crm.Client{FullName: "C", Email: "c@x.y", SalesContactID: 1})
	contract, _ := fx.store.CreateContract(ctx, crm.Contract{ClientID: client.ID, SalesContactID: 1, Signed: true})
	event, _ := fx.store.CreateEvent(ctx, crm.Event{Name: "Launch", ContractID: contract.ID, ClientID: client.ID})

	// unassigned support cannot edit notes
	rr := fx.do(t, http.MethodPut, fmt.Sprintf("/v1/events/%d/notes", event.ID), "support", map[string]string{
		"notes": "too early",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before assignment, got %d", rr.Code)
	}

	// only management assigns; assignee must be support
	rr = fx.do(t, http.MethodPost, fmt.Sprintf("/v1/events/%d/assign", event.ID), "commercial", map[string]any{
		"support_contact_id": 3,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for commercial assign, got %d", rr.Code)
	}
	rr = fx.do(t, http.MethodPost, fmt.Sprintf("/v1/events/%d/assign", event.ID), "management", map[string]any{
		"support_contact_id": 1,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-support assignee, got %d", rr.Code)
	}
	rr = fx.do(t, http.MethodPost, fmt.Sprintf("/v1/events/%d/assign", event.ID), "management", map[string]any{
		"support_contact_id": 3,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// now the assignee can update notes
	rr = fx.do(t, http.MethodPut, fmt.Sprintf("/v1/events/%d/notes", event.ID), "support", map[string]string{
		"notes": "venue booked",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated crm.Event
	decodeBody(t, rr, &updated)
	if updated.Notes != "venue booked" {
		t.Fatalf("unexpected notes: %q", updated.Notes)
	}
}

func TestNotFoundAndBadID(t *testing.T) {
	fx := newAPIFixture(t)

	rr := fx.do(t, http.MethodGet, "/v1/clients/9999", "management", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = fx.do(t, http.MethodGet, "/v1/clients/abc", "management", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rr.Code)
	}
	rr = fx.do(t, http.MethodPut, "/v1/clients/1", "management", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	fx := newAPIFixture(t)

	now := time.Now().Add(-48 * time.Hour)
	expired, err := auth.NewTokenIssuer("handler-test-secret", "HS256",
		auth.WithSessionTTL(time.Hour),
		auth.WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	token, _, err := expired.Issue(auth.Identity{ID: 1, Department: auth.DepartmentCommercial})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	fx.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rr.Code)
	}
}
