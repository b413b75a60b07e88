package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/chatsync/internal/apperr"
	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/cloud"
	"github.com/starford/chatsync/internal/convstore"
	"github.com/starford/chatsync/internal/importer"
	"github.com/starford/chatsync/internal/session"
	"github.com/starford/chatsync/internal/settingsstore"
	"github.com/starford/chatsync/internal/syncer"
	"github.com/starford/chatsync/internal/testutil"
)

// fakeService records calls and returns canned results.
type fakeService struct {
	mu       sync.Mutex
	calls    []string
	err      error
	state    syncer.State
	count    int
	items    []backup.Item
	imported []byte
	restored []byte
	exportTo string
	lastName string
}

func (f *fakeService) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeService) States() map[string]syncer.State {
	return map[string]syncer.State{syncer.OpAutoSync: {Status: syncer.StatusWatching}}
}

func (f *fakeService) op(name string) (syncer.State, error) {
	f.record(name)
	if f.err != nil {
		return syncer.State{Status: syncer.StatusError}, f.err
	}
	return f.state, nil
}

func (f *fakeService) UploadSettingsToCloud(context.Context) (syncer.State, error) {
	return f.op("upload")
}

func (f *fakeService) RestoreFromCloud(context.Context) (syncer.State, error) {
	return f.op("restore_conversations")
}

func (f *fakeService) RestoreSettingsFromCloud(context.Context) (syncer.State, error) {
	return f.op("restore_settings")
}

func (f *fakeService) RestoreAllFromCloud(context.Context) (syncer.State, error) {
	return f.op("restore_all")
}

func (f *fakeService) InstallPublicProvider(context.Context) (syncer.State, error) {
	return f.op("public_provider")
}

func (f *fakeService) CloudConversationCount(context.Context) (int, error) {
	f.record("count")
	return f.count, f.err
}

func (f *fakeService) ListBackups(context.Context) ([]backup.Item, error) {
	f.record("list")
	return f.items, f.err
}

func (f *fakeService) CreateBackup(context.Context) (backup.Item, error) {
	f.record("create")
	if f.err != nil {
		return backup.Item{}, f.err
	}
	return backup.Item{Name: backup.FileName(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), Size: 10}, nil
}

func (f *fakeService) TestBackupConnection(context.Context) error {
	f.record("test")
	return f.err
}

func (f *fakeService) RestoreBackup(_ context.Context, name string) (syncer.State, error) {
	f.lastName = name
	return f.op("restore_backup")
}

func (f *fakeService) DeleteBackup(_ context.Context, name string) error {
	f.record("delete")
	f.lastName = name
	return f.err
}

func (f *fakeService) ExportBackup(_ context.Context, dest string) (string, error) {
	f.record("export")
	f.exportTo = dest
	return dest + "/bundle.zip", f.err
}

func (f *fakeService) RestoreLocalBackup(_ context.Context, src string) (syncer.State, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return syncer.State{}, err
	}
	f.restored = data
	return f.op("restore_local")
}

func (f *fakeService) ImportChatbox(_ context.Context, data []byte) (int, error) {
	f.record("import")
	if f.err != nil {
		return 0, f.err
	}
	f.imported = data
	return 2, nil
}

// testEnv returns a router over svc. An empty authToken means disabled mode.
func testEnv(t *testing.T, svc Service, authToken string) http.Handler {
	t.Helper()
	return NewRouter(svc, authToken != "", authToken, nil, t.TempDir())
}

func do(router http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e errResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e.Error
}

func TestStatesEndpoint(t *testing.T) {
	router := testEnv(t, &fakeService{}, "")

	w := do(router, http.MethodGet, "/sync/states", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("states = %d", w.Code)
	}
	var resp StatesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.States[syncer.OpAutoSync].Status != syncer.StatusWatching {
		t.Errorf("states = %+v", resp.States)
	}
}

func TestOperationEndpoints(t *testing.T) {
	cases := []struct {
		path string
		call string
		op   string
	}{
		{"/sync/upload", "upload", syncer.OpUploadSettings},
		{"/sync/restore/conversations", "restore_conversations", syncer.OpRestoreConversations},
		{"/sync/restore/settings", "restore_settings", syncer.OpRestoreSettings},
		{"/sync/restore/all", "restore_all", syncer.OpRestoreAll},
		{"/sync/public-provider", "public_provider", syncer.OpPublicProvider},
	}
	for _, tc := range cases {
		t.Run(tc.call, func(t *testing.T) {
			svc := &fakeService{state: syncer.State{Status: syncer.StatusSuccess, Restored: 3, Skipped: 1}}
			router := testEnv(t, svc, "")

			w := do(router, http.MethodPost, tc.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			var resp OperationResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Op != tc.op || resp.State.Restored != 3 || resp.State.Skipped != 1 {
				t.Errorf("response = %+v", resp)
			}
			if len(svc.calls) != 1 || svc.calls[0] != tc.call {
				t.Errorf("calls = %v", svc.calls)
			}
		})
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		msg  string
	}{
		{"unauthenticated", apperr.New("GET /sync/all", apperr.ErrUnauthenticated, nil), http.StatusUnauthorized, "not logged in"},
		{"decode", apperr.New("GET /sync/all", apperr.ErrDecode, errors.New("bad")), http.StatusBadGateway, ""},
		{"http status", apperr.Status("GET /sync/all", 503), http.StatusBadGateway, ""},
		{"transport", apperr.New("GET /sync/all", apperr.ErrTransport, errors.New("refused")), http.StatusBadGateway, ""},
		{"not found", apperr.New("backup: read", apperr.ErrNotFound, nil), http.StatusNotFound, ""},
		{"not configured", backup.ErrNotConfigured, http.StatusConflict, "webdav not configured"},
		{"no public provider", syncer.ErrPublicProviderUnavailable, http.StatusConflict, ""},
		{"unclassified", errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := testEnv(t, &fakeService{err: tc.err}, "")
			w := do(router, http.MethodPost, "/sync/restore/all", nil)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			if got := decodeError(t, w); tc.msg != "" && got != tc.msg {
				t.Errorf("error = %q, want %q", got, tc.msg)
			}
		})
	}
}

func TestCloudCount(t *testing.T) {
	router := testEnv(t, &fakeService{count: 7}, "")

	w := do(router, http.MethodGet, "/sync/cloud/conversations/count", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("count = %d", w.Code)
	}
	var resp CountResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 7 {
		t.Errorf("count = %d, want 7", resp.Count)
	}
}

func TestListBackups(t *testing.T) {
	items := []backup.Item{{Name: "chatsync_backup_20240502T000000Z.zip"}, {Name: "chatsync_backup_20240501T000000Z.zip"}}
	router := testEnv(t, &fakeService{items: items}, "")

	w := do(router, http.MethodGet, "/backups", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp BackupListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Backups[0].Name != items[0].Name {
		t.Errorf("list = %+v", resp)
	}
}

func TestListBackups_EmptyIsArray(t *testing.T) {
	router := testEnv(t, &fakeService{}, "")

	w := do(router, http.MethodGet, "/backups", nil)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"backups":[]`)) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCreateAndTestBackup(t *testing.T) {
	svc := &fakeService{}
	router := testEnv(t, svc, "")

	if w := do(router, http.MethodPost, "/backups", nil); w.Code != http.StatusCreated {
		t.Errorf("create = %d", w.Code)
	}
	if w := do(router, http.MethodPost, "/backups/test", nil); w.Code != http.StatusNoContent {
		t.Errorf("test = %d", w.Code)
	}
	if len(svc.calls) != 2 || svc.calls[0] != "create" || svc.calls[1] != "test" {
		t.Errorf("calls = %v", svc.calls)
	}
}

func TestRestoreAndDeleteBackupByName(t *testing.T) {
	svc := &fakeService{state: syncer.State{Status: syncer.StatusSuccess, Restored: 4}}
	router := testEnv(t, svc, "")
	name := "chatsync_backup_20240501T120000Z.zip"

	w := do(router, http.MethodPost, "/backups/"+name+"/restore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore = %d", w.Code)
	}
	if svc.lastName != name {
		t.Errorf("restored %q, want %q", svc.lastName, name)
	}

	w = do(router, http.MethodDelete, "/backups/"+name, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if svc.lastName != name {
		t.Errorf("deleted %q", svc.lastName)
	}
}

func TestRestoreBackup_InvalidName(t *testing.T) {
	router := testEnv(t, &fakeService{err: backup.ErrInvalidName}, "")

	w := do(router, http.MethodPost, "/backups/notes.txt/restore", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid name = %d, want 400", w.Code)
	}
}

func TestExportBackup(t *testing.T) {
	svc := &fakeService{}
	dir := t.TempDir() + "/exports"
	router := NewRouter(svc, false, "", nil, dir)

	w := do(router, http.MethodPost, "/backups/export", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.exportTo != dir {
		t.Errorf("exported to %q, want %q", svc.exportTo, dir)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("export dir not created: %v", err)
	}
}

func TestListLocalBackups(t *testing.T) {
	dir := t.TempDir()
	name := backup.FileName(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	if err := os.WriteFile(dir+"/"+name, []byte("zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(&fakeService{}, false, "", nil, dir)

	w := do(router, http.MethodGet, "/backups/local", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("local list = %d", w.Code)
	}
	var resp BackupListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Backups[0].Name != name {
		t.Errorf("list = %+v", resp)
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestImportChatbox_RawBody(t *testing.T) {
	svc := &fakeService{}
	router := testEnv(t, svc, "")
	body := []byte(`{"settings":{"providers":{}}}`)

	w := do(router, http.MethodPost, "/import/chatbox", body)
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d", w.Code)
	}
	var resp ImportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Imported != 2 || !bytes.Equal(svc.imported, body) {
		t.Errorf("resp = %+v, imported = %s", resp, svc.imported)
	}
}

func TestImportChatbox_Multipart(t *testing.T) {
	svc := &fakeService{}
	router := testEnv(t, svc, "")
	content := []byte(`{"settings":{}}`)
	buf, ct := multipartBody(t, "file", "chatbox.json", content)

	req := httptest.NewRequest(http.MethodPost, "/import/chatbox", buf)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(svc.imported, content) {
		t.Errorf("imported = %s", svc.imported)
	}
}

func TestImportChatbox_MissingFileField(t *testing.T) {
	router := testEnv(t, &fakeService{}, "")
	buf, ct := multipartBody(t, "wrong", "x.json", []byte("{}"))

	req := httptest.NewRequest(http.MethodPost, "/import/chatbox", buf)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestImportChatbox_NotObject(t *testing.T) {
	router := testEnv(t, &fakeService{err: importer.ErrNotObject}, "")

	w := do(router, http.MethodPost, "/import/chatbox", []byte(`[1,2]`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("not object = %d, want 400", w.Code)
	}
}

func TestImportChatbox_EmptyBody(t *testing.T) {
	svc := &fakeService{}
	router := testEnv(t, svc, "")

	w := do(router, http.MethodPost, "/import/chatbox", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty = %d, want 400", w.Code)
	}
	if len(svc.calls) != 0 {
		t.Errorf("service called on empty body: %v", svc.calls)
	}
}

func TestUploadBackup_StagesFileForRestore(t *testing.T) {
	svc := &fakeService{state: syncer.State{Status: syncer.StatusSuccess, Restored: 5}}
	router := testEnv(t, svc, "")
	content := []byte("PK\x03\x04fake zip")
	buf, ct := multipartBody(t, "file", "backup.zip", content)

	req := httptest.NewRequest(http.MethodPost, "/backups/upload", buf)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(svc.restored, content) {
		t.Errorf("staged file content = %q", svc.restored)
	}
	var resp OperationResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Op != syncer.OpRestoreBackup || resp.State.Restored != 5 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, &fakeService{}, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/sync/upload", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed upload = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	svc := &fakeService{}
	router := testEnv(t, svc, "secret123")

	w := do(router, http.MethodPost, "/sync/upload", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if len(svc.calls) != 0 {
		t.Errorf("handler ran without auth: %v", svc.calls)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, &fakeService{}, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/sync/states", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router := testEnv(t, &fakeService{}, "")

	w := do(router, http.MethodGet, "/sync/states", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := NewRouter(&fakeService{}, true, "secret", sseStub(), t.TempDir())

	w := do(router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := NewRouter(&fakeService{}, true, "tok", sseStub(), t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

// End to end through a real orchestrator.

func orchestratorEnv(t *testing.T, cloudURL string, token string) (http.Handler, *convstore.DB) {
	t.Helper()
	_, fs := testutil.TestFS(t)
	settings, err := settingsstore.Open(fs, settingsstore.DefaultFileName, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	db, err := convstore.Open(testutil.TestDBPath(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	tokens := session.NewMemory()
	if token != "" {
		if err := tokens.SetToken(context.Background(), token); err != nil {
			t.Fatal(err)
		}
	}
	o := syncer.New(settings, db, tokens, cloud.NewClient(nil, cloudURL), nil, syncer.Options{Logger: testutil.DiscardLogger()})
	return NewRouter(o, false, "", nil, t.TempDir()), db
}

func TestOrchestrator_NotLoggedIn(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()
	router, _ := orchestratorEnv(t, srv.URL, "")

	w := do(router, http.MethodPost, "/sync/restore/conversations", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if msg := decodeError(t, w); msg != "not logged in" {
		t.Errorf("error = %q", msg)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("cloud contacted %d times without a token", n)
	}
}

func TestOrchestrator_RestoreConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != cloud.PathConversations || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":"7b0e4f2c-2a7d-4d8e-9a51-3f1c2b6d9e10","title":"hello","nodes":[]},
			{"id":"c1d2e3f4-0000-4000-8000-000000000000","isDeleted":true}
		]}`))
	}))
	defer srv.Close()
	router, db := orchestratorEnv(t, srv.URL, "tok")

	w := do(router, http.MethodPost, "/sync/restore/conversations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp OperationResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.State.Status != syncer.StatusSuccess || resp.State.Restored != 1 || resp.State.Skipped != 1 {
		t.Errorf("state = %+v", resp.State)
	}
	if n, _ := db.Count(context.Background()); n != 1 {
		t.Errorf("stored = %d, want 1", n)
	}

	w = do(router, http.MethodGet, "/backups", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("backups without manager = %d, want 409", w.Code)
	}
}
