package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docmeta/internal/config"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/session"
	"github.com/dgallion1/docmeta/internal/source"
	"github.com/dgallion1/docmeta/internal/store"
)

const testKey = "secret"

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("Hello world\nSecond line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(":memory:", log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.APIKey = testKey
	cfg.DocumentRoot = root
	cfg.AcquireTimeout = 5 * time.Second

	orch := pipeline.NewOrchestrator(cfg, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	open := func(ctx context.Context, path string) (model.Accessor, error) {
		src, err := source.Load(path)
		if err != nil {
			return nil, err
		}
		return source.NewOverlay(src, st, path), nil
	}
	mgr := session.NewManager(root, 10*time.Millisecond, open, st, orch, nil, log)
	t.Cleanup(mgr.CloseAll)

	return NewServer(mgr, orch, log, cfg), root
}

func call(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// decodeAs decodes into a fresh value so nested nodes never carry over
// from an earlier response.
func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	decodeBody(t, rec, &v)
	return v
}

func openNotes(t *testing.T, srv http.Handler) string {
	t.Helper()
	rec := call(t, srv, "POST", "/api/sessions", `{"path":"notes.txt"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var st session.Status
	decodeBody(t, rec, &st)
	return st.ID
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sessions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bad token, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)

	rec := call(t, srv, "GET", "/api/sessions/"+sid, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	decodeBody(t, rec, &resp)
	if resp.PageCount != 1 || resp.Dirty {
		t.Errorf("expected 1 clean page, got %+v", resp)
	}

	rec = call(t, srv, "GET", "/api/sessions", "")
	var list struct {
		Sessions []session.Status `json:"sessions"`
	}
	decodeBody(t, rec, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != sid {
		t.Errorf("expected the open session listed, got %+v", list.Sessions)
	}

	if rec := call(t, srv, "DELETE", "/api/sessions/"+sid, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := call(t, srv, "GET", "/api/sessions/"+sid, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after close, got %d", rec.Code)
	}
}

func TestOpenSession_Rejected(t *testing.T) {
	srv, _ := testServer(t)
	tests := []struct {
		body string
		code int
	}{
		{`{"path":"../escape.txt"}`, http.StatusForbidden},
		{`{"path":"notes.exe"}`, http.StatusBadRequest},
		{`{"path":""}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := call(t, srv, "POST", "/api/sessions", tt.body); rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.body, tt.code, rec.Code)
		}
	}
}

func TestOutline_Edits(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)
	base := "/api/sessions/" + sid + "/outline"

	out := decodeAs[outlineResponse](t, call(t, srv, "GET", base, ""))
	if out.Raw != "(bookmarks)" || out.Dirty {
		t.Fatalf("expected a clean empty outline, got %+v", out)
	}

	rec := call(t, srv, "POST", base+"/bookmarks", `{"page":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	out = decodeAs[outlineResponse](t, rec)
	if out.Raw != `(bookmarks ("(no title)" "#1"))` || !out.Dirty {
		t.Fatalf("unexpected outline %+v", out)
	}
	entry := out.Tree.Children[0]
	if entry.URI == nil || *entry.URI != "#1" {
		t.Errorf("expected uri #1 in the tree, got %+v", entry)
	}

	nid := strconv.Itoa(int(entry.ID))
	out = decodeAs[outlineResponse](t, call(t, srv, "PATCH", base+"/nodes/"+nid, `{"text":"Start"}`))
	if out.Raw != `(bookmarks ("Start" "#1"))` {
		t.Errorf("expected renamed entry, got %s", out.Raw)
	}

	out = decodeAs[outlineResponse](t, call(t, srv, "POST", base+"/nodes/"+nid+"/children", `{"text":"Child","uri":"#1"}`))
	child := out.Tree.Children[0].Children[0]
	if rec := call(t, srv, "POST", base+"/nodes/"+nid+"/move", `{"parent":`+strconv.Itoa(int(child.ID))+`}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a cycle, got %d", rec.Code)
	}
	out = decodeAs[outlineResponse](t, call(t, srv, "DELETE", base+"/nodes/"+strconv.Itoa(int(child.ID)), ""))
	if out.Raw != `(bookmarks ("Start" "#1"))` {
		t.Errorf("expected child removed, got %s", out.Raw)
	}
	if rec := call(t, srv, "DELETE", base+"/nodes/999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown node, got %d", rec.Code)
	}

	// the root takes neither field, so nothing is applied
	root := strconv.Itoa(int(out.Tree.ID))
	if rec := call(t, srv, "PATCH", base+"/nodes/"+root, `{"text":"x","uri":"#2"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for patching the root, got %d", rec.Code)
	}
	if out = decodeAs[outlineResponse](t, call(t, srv, "GET", base, "")); out.Raw != `(bookmarks ("Start" "#1"))` {
		t.Errorf("expected outline untouched by a rejected patch, got %s", out.Raw)
	}

	out = decodeAs[outlineResponse](t, call(t, srv, "DELETE", base, ""))
	if out.Raw != "(bookmarks)" {
		t.Errorf("expected empty outline, got %s", out.Raw)
	}
}

func TestOutline_Plaintext(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)
	base := "/api/sessions/" + sid + "/outline"
	call(t, srv, "POST", base+"/bookmarks", `{"page":1}`)

	rec := call(t, srv, "GET", base+"/plain", "")
	if rec.Body.String() != "#1 (no title)\n" {
		t.Fatalf("expected plaintext outline, got %q", rec.Body.String())
	}
	if rec := call(t, srv, "PUT", base+"/plain", "#1 (no title)\n"); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for an unchanged outline, got %d", rec.Code)
	}

	rec = call(t, srv, "PUT", base+"/plain", "#1 Cover\n    #1 Inside\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out outlineResponse
	decodeBody(t, rec, &out)
	if out.Raw != `(bookmarks ("Cover" "#1" ("Inside" "#1")))` {
		t.Errorf("unexpected outline %s", out.Raw)
	}

	if rec := call(t, srv, "PUT", base+"/plain", "        #1 Too deep\n"); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad indentation, got %d", rec.Code)
	}
}

func TestText_Plaintext(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)
	base := "/api/sessions/" + sid + "/pages/1/text"

	rec := call(t, srv, "GET", base+"/plain", "")
	if rec.Body.String() != "Hello world\nSecond line\n" {
		t.Fatalf("expected one line per text line, got %q", rec.Body.String())
	}
	if rec := call(t, srv, "PUT", base+"/plain", "Hello world\nSecond line\n"); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for unchanged text, got %d", rec.Code)
	}
	if rec := call(t, srv, "PUT", base+"/plain", "Hello world\n"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 when the line count changes, got %d", rec.Code)
	}

	rec = call(t, srv, "PUT", base+"/plain", "Hello there\nSecond line\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out textResponse
	decodeBody(t, rec, &out)
	if !out.Dirty || !strings.Contains(out.Raw, `"Hello there")`) {
		t.Errorf("expected the edited line as a leaf, got %+v", out)
	}

	if rec := call(t, srv, "GET", "/api/sessions/"+sid+"/pages/2/text", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 past the last page, got %d", rec.Code)
	}
	if rec := call(t, srv, "GET", "/api/sessions/"+sid+"/pages/0/text", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for page 0, got %d", rec.Code)
	}
}

func TestText_StripAndPatch(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)
	base := "/api/sessions/" + sid + "/pages/1/text"

	if rec := call(t, srv, "POST", base+"/strip", `{"zone":"bogus"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown zone, got %d", rec.Code)
	}
	rec := call(t, srv, "POST", base+"/strip", `{"zone":"line"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out textResponse
	decodeBody(t, rec, &out)
	if strings.Contains(out.Raw, "(word") {
		t.Errorf("expected no word zones after strip, got %s", out.Raw)
	}

	line := out.Tree.Children[0].Children[0]
	if line.Type != "line" || line.Text == nil || *line.Text != "Hello world" {
		t.Fatalf("expected a line leaf, got %+v", line)
	}
	rec = call(t, srv, "PATCH", base+"/nodes/"+strconv.Itoa(int(line.ID)), `{"text":"Hi","w":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out = decodeAs[textResponse](t, rec)
	patched := out.Tree.Children[0].Children[0]
	if *patched.Text != "Hi" || patched.Rect.W != 10 || patched.Rect.X != line.Rect.X {
		t.Errorf("expected text and width patched, got %+v", patched)
	}
	if rec := call(t, srv, "PATCH", base+"/nodes/"+strconv.Itoa(int(line.ID)), `{"w":-1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative geometry, got %d", rec.Code)
	}
}

func TestAnnotations(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)

	rec := call(t, srv, "GET", "/api/sessions/"+sid+"/pages/shared/annotations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out annotationsResponse
	decodeBody(t, rec, &out)
	if out.Page != "shared" || len(out.Metadata) != 1 || out.Metadata[0].Value != "notes" {
		t.Errorf("expected the title metadata, got %+v", out)
	}

	out = decodeAs[annotationsResponse](t, call(t, srv, "GET", "/api/sessions/"+sid+"/pages/1/annotations", ""))
	if out.Raw != "()" || len(out.MapAreas) != 0 {
		t.Errorf("expected no page annotations, got %+v", out)
	}
}

func waitTask(t *testing.T, srv http.Handler, tid string) pipeline.TaskSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var snap pipeline.TaskSnapshot
		decodeBody(t, call(t, srv, "GET", "/api/tasks/"+tid, ""), &snap)
		if snap.Status == pipeline.StatusSucceeded || snap.Status == pipeline.StatusFailed {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", tid)
	return pipeline.TaskSnapshot{}
}

func TestSave_PersistsAcrossSessions(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)
	call(t, srv, "POST", "/api/sessions/"+sid+"/outline/bookmarks", `{"page":1}`)

	rec := call(t, srv, "POST", "/api/sessions/"+sid+"/save", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted struct {
		TaskID string `json:"task_id"`
	}
	decodeBody(t, rec, &accepted)
	if snap := waitTask(t, srv, accepted.TaskID); snap.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected the save to succeed, got %+v", snap)
	}

	var st sessionResponse
	decodeBody(t, call(t, srv, "GET", "/api/sessions/"+sid, ""), &st)
	if st.Dirty || st.SavePending {
		t.Errorf("expected a clean session after save, got %+v", st)
	}

	other := openNotes(t, srv)
	out := decodeAs[outlineResponse](t, call(t, srv, "GET", "/api/sessions/"+other+"/outline", ""))
	if out.Raw != `(bookmarks ("(no title)" "#1"))` {
		t.Errorf("expected the saved outline in a new session, got %s", out.Raw)
	}

	var stats struct {
		Stats map[string]pipeline.KindStats `json:"stats"`
	}
	decodeBody(t, call(t, srv, "GET", "/api/stats/tasks", ""), &stats)
	if stats.Stats[session.KindSave].Count != 1 {
		t.Errorf("expected one save in the stats, got %+v", stats.Stats)
	}
}

func TestRevert(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)
	call(t, srv, "POST", "/api/sessions/"+sid+"/outline/bookmarks", `{"page":1}`)

	rec := call(t, srv, "POST", "/api/sessions/"+sid+"/revert", "")
	var st session.Status
	decodeBody(t, rec, &st)
	if st.Dirty {
		t.Error("expected a clean session after revert")
	}
	out := decodeAs[outlineResponse](t, call(t, srv, "GET", "/api/sessions/"+sid+"/outline", ""))
	if out.Raw != "(bookmarks)" {
		t.Errorf("expected the original outline, got %s", out.Raw)
	}
}

func TestOutlinePDF_NeedsPDF(t *testing.T) {
	srv, _ := testServer(t)
	sid := openNotes(t, srv)
	if rec := call(t, srv, "GET", "/api/sessions/"+sid+"/outline.pdf", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a text source, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{session.ErrSavePending, http.StatusConflict},
		{&model.StructureError{Reason: "bad"}, http.StatusUnprocessableEntity},
		{pipeline.ErrQueueFull, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.code {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.code, got)
		}
	}
}
