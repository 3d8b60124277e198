package activity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_ListEmpty(t *testing.T) {
	s := NewServer(NewStore())

	rec := do(t, s, http.MethodGet, "/activities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestServer_Create(t *testing.T) {
	store := NewStore()
	s := NewServer(store)

	rec := do(t, s, http.MethodPost, "/activities", `{"description":"buy milk"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var a Activity
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if a.Description != "buy milk" || a.ID == "" {
		t.Errorf("unexpected activity %+v", a)
	}
	if len(store.List()) != 1 {
		t.Error("expected activity stored")
	}
}

func TestServer_CreateEmptyDescription(t *testing.T) {
	s := NewServer(NewStore())

	rec := do(t, s, http.MethodPost, "/activities", `{"description":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_UpdateToggles(t *testing.T) {
	store := NewStore()
	a, _ := store.Add("buy milk")
	s := NewServer(store)

	rec := do(t, s, http.MethodPut, "/activities/"+a.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, _ := store.Get(a.ID)
	if !got.Checked {
		t.Error("expected PUT without body to flip checked")
	}

	rec = do(t, s, http.MethodPut, "/activities/"+a.ID, `{"checked":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, _ = store.Get(a.ID)
	if !got.Checked {
		t.Error("expected explicit checked to be applied")
	}
}

func TestServer_UpdateMissing(t *testing.T) {
	s := NewServer(NewStore())

	rec := do(t, s, http.MethodPut, "/activities/missing", `{"checked":true}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_Delete(t *testing.T) {
	store := NewStore()
	a, _ := store.Add("buy milk")
	s := NewServer(store)

	rec := do(t, s, http.MethodDelete, "/activities/"+a.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var removed Activity
	if err := json.Unmarshal(rec.Body.Bytes(), &removed); err != nil || removed.ID != a.ID {
		t.Errorf("expected removed activity in body, got %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodDelete, "/activities/"+a.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}
