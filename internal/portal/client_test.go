package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vecindapp/portalsync/internal/errs"
	"github.com/vecindapp/portalsync/internal/model"
)

func newTestClient(t *testing.T, baseURL string) (*Client, *FileSessionStore) {
	t.Helper()
	sessions, err := NewFileSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	c := NewClient(ClientOptions{
		BaseURL:    baseURL,
		Sessions:   sessions,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
	return c, sessions
}

func TestClient_Headers(t *testing.T) {
	t.Parallel()
	var got http.Header
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	if _, err := c.Request(context.Background(), "reservas", RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"fecha": "2026-09-01"},
	}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method = %s", gotMethod)
	}
	if got.Get("Accept") != "application/json" {
		t.Fatalf("missing Accept header")
	}
	if got.Get("Content-Type") != "application/json" {
		t.Fatalf("missing Content-Type with body")
	}
	if got.Get("Authorization") != "Bearer tok" {
		t.Fatalf("Authorization = %q", got.Get("Authorization"))
	}
}

func TestClient_NoContentTypeWithoutBody(t *testing.T) {
	t.Parallel()
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	if _, err := c.Request(context.Background(), "reservas", RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got.Get("Content-Type") != "" {
		t.Fatalf("Content-Type must only be sent with a body")
	}
}

func TestClient_QueryParams_SkipsEmpty(t *testing.T) {
	t.Parallel()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	_, err := c.Request(context.Background(), "incidencias", RequestOptions{
		Params: map[string]string{"estatus": "ABIERTA", "edificio": ""},
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if gotQuery != "estatus=ABIERTA" {
		t.Fatalf("query = %q, empty params must be dropped", gotQuery)
	}
}

func TestClient_NormalizesStructuredError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"fecha invalida","statusCode":"RES-422","description":"la fecha ya pasó"}}`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	_, err := c.Request(context.Background(), "reservas", RequestOptions{Method: http.MethodPost, Body: map[string]string{}})
	if !errors.Is(err, errs.ErrPortal) {
		t.Fatalf("want ErrPortal, got %v", err)
	}
	var pe *errs.PortalError
	if !errors.As(err, &pe) {
		t.Fatalf("want *PortalError, got %T", err)
	}
	if pe.Message != "fecha invalida" || pe.StatusCode != "RES-422" || pe.Description != "la fecha ya pasó" || pe.HTTPStatus != 422 {
		t.Fatalf("fields not extracted: %+v", pe)
	}
}

func TestClient_Normalizes404(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	_, err := c.Request(context.Background(), "reservas/99", RequestOptions{})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for 404, got %v", err)
	}
}

func TestClient_NormalizesUnexpected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	_, err := c.Request(context.Background(), "reservas", RequestOptions{})
	var pe *errs.PortalError
	if !errors.As(err, &pe) || pe.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("want fallback PortalError with raw status, got %v", err)
	}
}

func TestClient_BodyStatusErrorOn200(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"algo falló"}`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	_, err := c.Request(context.Background(), "reservas", RequestOptions{})
	if !errors.Is(err, errs.ErrPortal) {
		t.Fatalf("2xx with status=error must normalize to ErrPortal, got %v", err)
	}
}

func TestClient_TransportFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c, sessions := newTestClient(t, srv.URL)
	_ = sessions.SetCredential(model.Credential{Token: "tok", TokenType: "Bearer"})

	_, err := c.Request(context.Background(), "reservas", RequestOptions{})
	if !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("want ErrNetwork, got %v", err)
	}
}

func TestClient_SelfHealingRelogin(t *testing.T) {
	t.Parallel()
	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, sessions := newTestClient(t, srv.URL)
	c.RememberIdentity("ana@example.com")
	c.SetRelogin(func(ctx context.Context, email string) error {
		if email != "ana@example.com" {
			t.Fatalf("relogin email = %q", email)
		}
		return sessions.SetCredential(model.Credential{Token: "fresh", TokenType: "Bearer"})
	})

	if _, err := c.Request(context.Background(), "reservas", RequestOptions{}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if sawAuth != "Bearer fresh" {
		t.Fatalf("request must carry re-acquired credential, got %q", sawAuth)
	}
}

func TestDecodeList_Envelopes(t *testing.T) {
	t.Parallel()
	cases := []string{
		`[{"id":"1"},{"id":"2"}]`,
		`{"data":[{"id":"1"},{"id":"2"}]}`,
		`{"items":[{"id":"1"},{"id":"2"}]}`,
		`{"result":[{"id":"1"},{"id":"2"}]}`,
	}
	for _, raw := range cases {
		out, err := DecodeList(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("DecodeList(%s): %v", raw, err)
		}
		if len(out) != 2 || out[0]["id"] != "1" {
			t.Fatalf("DecodeList(%s) = %+v", raw, out)
		}
	}
	if out, err := DecodeList(nil); err != nil || out != nil {
		t.Fatalf("empty payload: %v %v", out, err)
	}
}

func TestDecodeObject_Envelopes(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`{"id":"7"}`, `{"data":{"id":"7"}}`} {
		out, err := DecodeObject(json.RawMessage(raw))
		if err != nil || out["id"] != "7" {
			t.Fatalf("DecodeObject(%s) = %+v, %v", raw, out, err)
		}
	}
}
