package bot

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestConnectorSendsAuthenticatedReply(t *testing.T) {
	var tokenCalls atomic.Int32
	var got Activity
	var gotAuth, gotPath string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "app-id" ||
			r.Form.Get("client_secret") != "secret" || r.Form.Get("scope") != DefaultTokenScope {
			t.Errorf("token form = %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"bf-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v3/conversations/", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode reply: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewConnector(ConnectorConfig{
		AppID:       "app-id",
		AppPassword: "secret",
		TokenURL:    srv.URL + "/token",
		HTTPClient:  srv.Client(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	in := message("hello", nil)
	in.ServiceURL = srv.URL + "/"
	for i := 0; i < 2; i++ {
		if err := c.Send(context.Background(), in.Reply("hi there")); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if gotAuth != "Bearer bf-token" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotPath != "/v3/conversations/conv-1/activities/act-1" {
		t.Fatalf("path = %q", gotPath)
	}
	if got.Text != "hi there" || got.Recipient.ID != "user-1" || got.ID == "" {
		t.Fatalf("reply = %+v", got)
	}
	if n := tokenCalls.Load(); n != 1 {
		t.Fatalf("token fetched %d times, want 1", n)
	}
}

func TestConnectorReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversation gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewConnector(ConnectorConfig{HTTPClient: srv.Client(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	in := message("hello", nil)
	in.ServiceURL = srv.URL

	err := c.Send(context.Background(), in.Reply("hi"))
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}

	if err := c.Send(context.Background(), &Activity{Type: ActivityMessage}); err == nil {
		t.Fatalf("expected error for reply without conversation")
	}
}
