package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"planboard-api/domain"
	"planboard-api/storage"
)

type mockStore struct {
	mu sync.Mutex

	tasks      map[string]domain.Task
	users      map[string]domain.User
	categories map[string]domain.Category

	orderUpdates     []domain.OrderUpdate
	userOrderUpdates []domain.OrderUpdate

	listErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:      make(map[string]domain.Task),
		users:      make(map[string]domain.User),
		categories: make(map[string]domain.Category),
	}
}

func (m *mockStore) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []domain.Task{}
	for _, t := range m.tasks {
		if ownerID == "" || t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) GetTask(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, nil
	}
	return &t, nil
}

func (m *mockStore) InsertTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *mockStore) UpdateTask(ctx context.Context, upd storage.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[upd.ID]
	if !ok {
		return errors.New("not found")
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Completed != nil {
		t.Completed = *upd.Completed
	}
	t.UpdatedAt = upd.UpdatedAt
	m.tasks[upd.ID] = t
	return nil
}

func (m *mockStore) DeleteTask(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Partition-keyed like the real table: a wrong owner is a tolerated 404.
	if t, ok := m.tasks[id]; ok && t.OwnerID == ownerID {
		delete(m.tasks, id)
	}
	return nil
}

func (m *mockStore) ApplyTaskOrders(ctx context.Context, updates []domain.OrderUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderUpdates = append(m.orderUpdates, updates...)
	return nil
}

func (m *mockStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.User{}
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *mockStore) UpsertUser(ctx context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *mockStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *mockStore) ApplyUserOrders(ctx context.Context, updates []domain.OrderUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userOrderUpdates = append(m.userOrderUpdates, updates...)
	return nil
}

func (m *mockStore) ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Category{}
	for _, c := range m.categories {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) InsertCategory(ctx context.Context, c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
	return nil
}

func (m *mockStore) UpdateCategory(ctx context.Context, ownerID, id string, name, color *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return errors.New("not found")
	}
	if name != nil {
		c.Name = *name
	}
	if color != nil {
		c.Color = *color
	}
	m.categories[id] = c
	return nil
}

func (m *mockStore) DeleteCategory(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, id)
	return nil
}

func (m *mockStore) taskOrderUpdates() []domain.OrderUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderUpdate(nil), m.orderUpdates...)
}

type stubAuth struct {
	identity Identity
	err      error
}

func (s *stubAuth) IdentityFromAuthHeader(string) (Identity, error) {
	if s.err != nil {
		return Identity{}, s.err
	}
	return s.identity, nil
}

func newTestServer(t *testing.T, store Storage, auth Authenticator) *echo.Echo {
	t.Helper()
	e := echo.New()
	logger, _ := test.NewNullLogger()
	Register(e, store, auth, logger)
	t.Cleanup(shutdownOrderWriter)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func seedUser(store *mockStore, id string, role domain.Role) domain.User {
	u := domain.User{ID: id, Nickname: id, Email: id + "@example.com", Role: role, Color: "#123456", CreatedAt: time.Now()}
	store.users[id] = u
	return u
}

func TestGetTasksRequiresAuth(t *testing.T) {
	store := newMockStore()
	e := newTestServer(t, store, &stubAuth{err: errMissingAuthorization})

	rec := doJSON(e, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetTasksFiltersAndAnnotates(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	ord1, ord2 := int64(0), int64(1)
	expired := time.Now().Add(-time.Minute)
	store.tasks["t1"] = domain.Task{ID: "t1", Title: "buy milk", OwnerID: "u1", DueDate: "2024-03-15", Order: &ord1}
	store.tasks["t2"] = domain.Task{ID: "t2", Title: "old news", OwnerID: "u1", Completed: true, ExpiresAt: &expired, Policy: domain.PolicyNotify, Order: &ord2}
	store.tasks["t3"] = domain.Task{ID: "t3", Title: "not mine", OwnerID: "u2"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	rec := doJSON(e, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp tasksResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 2 {
		t.Fatalf("expected own tasks only, got %v", resp.Tasks)
	}
	if resp.Tasks[0].ID != "t1" || resp.Tasks[1].ID != "t2" {
		t.Fatalf("unexpected order: %s, %s", resp.Tasks[0].ID, resp.Tasks[1].ID)
	}
	if resp.Tasks[0].ExpirationStatus != domain.ExpirationNone {
		t.Fatalf("t1 status: %s", resp.Tasks[0].ExpirationStatus)
	}
	if resp.Tasks[1].ExpirationStatus != domain.ExpirationExpired {
		t.Fatalf("t2 status: %s", resp.Tasks[1].ExpirationStatus)
	}
	if resp.Stats.Completed != 1 || resp.Stats.Total != 2 {
		t.Fatalf("unexpected stats: %+v", resp.Stats)
	}
}

func TestGetTasksPeriodQuery(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	store.tasks["in"] = domain.Task{ID: "in", Title: "in window", OwnerID: "u1", DueDate: "2024-03-15"}
	store.tasks["out"] = domain.Task{ID: "out", Title: "next month", OwnerID: "u1", DueDate: "2024-04-02"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	rec := doJSON(e, http.MethodGet, "/api/tasks?period=month&anchor=2024-03-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp tasksResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "in" {
		t.Fatalf("unexpected tasks: %v", resp.Tasks)
	}

	if rec := doJSON(e, http.MethodGet, "/api/tasks?period=fortnight", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown period must 400, got %d", rec.Code)
	}
}

func TestPostTaskAssignsOrderKey(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	before := time.Now().UnixMilli() - 1
	rec := doJSON(e, http.MethodPost, "/api/tasks", `{"title":"new task","dueDate":"2024-03-15"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created taskView
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Order == nil || *created.Order < before {
		t.Fatalf("expected a fresh millisecond order key, got %v", created.Order)
	}
	if created.OwnerID != "u1" {
		t.Fatalf("owner not stamped: %s", created.OwnerID)
	}
	if len(store.tasks) != 1 {
		t.Fatalf("task not persisted")
	}
}

func TestPostTaskValidation(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	cases := []string{
		`{"title":"   "}`,
		`{"title":"x","dueDate":"15-03-2024"}`,
		`{"title":"x","policy":"notify"}`,
		`{"title":"x","expiresAt":"2024-03-15T10:00:00Z","policy":"sometimes"}`,
		`{"title":"x","expiresAt":"not-a-time"}`,
		`{"title":"x","bogus":true}`,
	}
	for _, body := range cases {
		if rec := doJSON(e, http.MethodPost, "/api/tasks", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestPatchTaskRejectsExpired(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	expired := time.Now().Add(-time.Minute)
	store.tasks["t1"] = domain.Task{ID: "t1", Title: "stale", OwnerID: "u1", ExpiresAt: &expired, Policy: domain.PolicyNotify}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	rec := doJSON(e, http.MethodPatch, "/api/tasks/t1", `{"title":"renamed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if store.tasks["t1"].Title != "stale" {
		t.Fatal("expired task must not change")
	}
}

func TestPatchTaskUpdatesAndReturnsView(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	store.tasks["t1"] = domain.Task{ID: "t1", Title: "old", OwnerID: "u1"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	rec := doJSON(e, http.MethodPatch, "/api/tasks/t1", `{"title":"new","completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := store.tasks["t1"]; got.Title != "new" || !got.Completed {
		t.Fatalf("update not applied: %+v", got)
	}

	if rec := doJSON(e, http.MethodPatch, "/api/tasks/missing", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing task must 404, got %d", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	store.tasks["t1"] = domain.Task{ID: "t1", Title: "bye", OwnerID: "u1"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	rec := doJSON(e, http.MethodDelete, "/api/tasks/t1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := store.tasks["t1"]; ok {
		t.Fatal("task not deleted")
	}
}

func TestReorderTasksRenumbersCollection(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		ord := int64(i)
		store.tasks[id] = domain.Task{ID: id, Title: id, OwnerID: "u1", Order: &ord, CreatedAt: base}
	}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	rec := doJSON(e, http.MethodPost, "/api/tasks/reorder", `{"itemId":"c","from":2,"to":0}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		updates := store.taskOrderUpdates()
		if len(updates) == 3 {
			byID := map[string]int64{}
			for _, u := range updates {
				byID[u.ID] = u.Order
			}
			if byID["c"] != 0 || byID["a"] != 1 || byID["b"] != 2 {
				t.Fatalf("unexpected renumber: %v", byID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("order updates never persisted: %v", updates)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReorderTasksValidatesMove(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	ord := int64(0)
	store.tasks["a"] = domain.Task{ID: "a", Title: "a", OwnerID: "u1", Order: &ord}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	if rec := doJSON(e, http.MethodPost, "/api/tasks/reorder", `{"itemId":"a","from":0,"to":9}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range move must 400, got %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodPost, "/api/tasks/reorder", `{"itemId":"ghost","from":0,"to":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong item must 400, got %d", rec.Code)
	}
}

func TestAdminPatchesForeignTask(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	seedUser(store, "boss", domain.RoleAdmin)
	store.tasks["t1"] = domain.Task{ID: "t1", Title: "old", OwnerID: "u1"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "boss"}})

	rec := doJSON(e, http.MethodPatch, "/api/tasks/t1?owner=u1", `{"title":"renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := store.tasks["t1"]; got.Title != "renamed" || got.OwnerID != "u1" {
		t.Fatalf("foreign task not updated in place: %+v", got)
	}
}

func TestNonAdminCannotTouchForeignTask(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	seedUser(store, "u2", domain.RoleUser)
	store.tasks["t1"] = domain.Task{ID: "t1", Title: "mine", OwnerID: "u1"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u2"}})

	// The owner parameter is ignored for plain users; the lookup stays in
	// their own partition.
	if rec := doJSON(e, http.MethodPatch, "/api/tasks/t1?owner=u1", `{"title":"hijack"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodDelete, "/api/tasks/t1?owner=u1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected tolerated 204, got %d", rec.Code)
	}
	if _, ok := store.tasks["t1"]; !ok {
		t.Fatal("foreign task must survive")
	}
}

func TestAdminDeletesForeignTask(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	seedUser(store, "boss", domain.RoleAdmin)
	store.tasks["t1"] = domain.Task{ID: "t1", Title: "bye", OwnerID: "u1"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "boss"}})

	rec := doJSON(e, http.MethodDelete, "/api/tasks/t1?owner=u1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := store.tasks["t1"]; ok {
		t.Fatal("foreign task not deleted")
	}
}

func TestAdminCreatesTaskOnBehalf(t *testing.T) {
	store := newMockStore()
	u1 := seedUser(store, "u1", domain.RoleUser)
	seedUser(store, "boss", domain.RoleAdmin)

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "boss"}})

	rec := doJSON(e, http.MethodPost, "/api/tasks", `{"title":"assigned","ownerId":"u1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created taskView
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.OwnerID != "u1" || created.OwnerEmail != u1.Email || created.OwnerNickname != u1.Nickname {
		t.Fatalf("owner fields must come from the target user: %+v", created)
	}

	if rec := doJSON(e, http.MethodPost, "/api/tasks", `{"title":"x","ownerId":"ghost"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown owner must 400, got %d", rec.Code)
	}
}

func TestPostTaskOwnerOverrideRequiresAdmin(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	seedUser(store, "u2", domain.RoleUser)

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u2"}})

	if rec := doJSON(e, http.MethodPost, "/api/tasks", `{"title":"x","ownerId":"u1"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(store.tasks) != 0 {
		t.Fatal("nothing must be created")
	}
}

func TestAdminReorderSpansOwners(t *testing.T) {
	store := newMockStore()
	seedUser(store, "boss", domain.RoleAdmin)
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	owners := map[string]string{"a": "u1", "b": "u2", "c": "u1"}
	for i, id := range []string{"a", "b", "c"} {
		ord := int64(i)
		store.tasks[id] = domain.Task{ID: id, Title: id, OwnerID: owners[id], Order: &ord, CreatedAt: base}
	}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "boss"}})

	rec := doJSON(e, http.MethodPost, "/api/tasks/reorder", `{"itemId":"c","from":2,"to":0}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		updates := store.taskOrderUpdates()
		if len(updates) == 3 {
			byID := map[string]domain.OrderUpdate{}
			for _, u := range updates {
				byID[u.ID] = u
			}
			if byID["c"].Order != 0 || byID["a"].Order != 1 || byID["b"].Order != 2 {
				t.Fatalf("unexpected renumber: %v", byID)
			}
			if byID["b"].OwnerID != "u2" || byID["c"].OwnerID != "u1" {
				t.Fatalf("updates must keep their owner partitions: %v", byID)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("order updates never persisted: %v", updates)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAdminListsCategoriesAcrossOwners(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	seedUser(store, "boss", domain.RoleAdmin)
	store.categories["c1"] = domain.Category{ID: "c1", Name: "work", OwnerID: "u1"}
	store.categories["c2"] = domain.Category{ID: "c2", Name: "home", OwnerID: "u2"}

	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "boss"}})

	rec := doJSON(e, http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var all []domain.Category
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin listing must span owners, got %v", all)
	}

	rec = doJSON(e, http.MethodGet, "/api/categories?owner=u1", "")
	var scoped []domain.Category
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &scoped); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != "c1" {
		t.Fatalf("owner-scoped listing wrong: %v", scoped)
	}
}

func TestFirstContactProvisionsProfile(t *testing.T) {
	store := newMockStore()
	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "new-user", Email: "fresh@example.com"}})

	rec := doJSON(e, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	u, ok := store.users["new-user"]
	if !ok {
		t.Fatal("profile not provisioned")
	}
	if u.Nickname != "fresh" {
		t.Fatalf("nickname must default to the email local part, got %q", u.Nickname)
	}
	if u.Color == "" {
		t.Fatal("profile must receive a color")
	}
	if u.Role != domain.RoleUser {
		t.Fatalf("fresh profiles are plain users, got %s", u.Role)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	store := newMockStore()
	seedUser(store, "u1", domain.RoleUser)
	e := newTestServer(t, store, &stubAuth{identity: Identity{UserID: "u1"}})

	rec := doJSON(e, http.MethodPost, "/api/categories", `{"name":"work","color":"#ff0000"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Category
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.OwnerID != "u1" || created.Name != "work" {
		t.Fatalf("unexpected category: %+v", created)
	}

	if rec := doJSON(e, http.MethodPost, "/api/categories", `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty name must 400, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodPatch, "/api/categories/"+created.ID, `{"name":"deep work"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("patch: expected 204, got %d", rec.Code)
	}
	if store.categories[created.ID].Name != "deep work" {
		t.Fatal("category rename not applied")
	}

	rec = doJSON(e, http.MethodDelete, "/api/categories/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	store := newMockStore()
	e := newTestServer(t, store, &stubAuth{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
