package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostmarkMailerRequiresToken(t *testing.T) {
	_, err := NewPostmarkMailer(PostmarkSettings{ServerToken: "  ", From: "no-reply@example.com"})
	if !errors.Is(err, ErrMissingServerToken) {
		t.Fatalf("expected ErrMissingServerToken, got %v", err)
	}
}

func TestPostmarkMailerSend(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"To":"a@b.com","SubmittedAt":"2026-01-02T03:04:05Z","MessageID":"msg-1","ErrorCode":0,"Message":"OK"}`))
	}))
	defer server.Close()

	mailer, err := NewPostmarkMailer(PostmarkSettings{
		ServerToken:   "test-token",
		From:          "no-reply@example.com",
		MessageStream: "outbound",
		Endpoint:      server.URL,
	}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}

	receipt, err := mailer.Send(context.Background(), Message{
		To:       []string{"a@b.com"},
		Subject:  "Confirm your email",
		Body:     "text",
		HTMLBody: "<p>html</p>",
		Tag:      "emailConfirmation",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "a@b.com" || received.From != "no-reply@example.com" {
		t.Errorf("unexpected addressing: %+v", received)
	}
	if received.Tag != "emailConfirmation" || received.MessageStream != "outbound" {
		t.Errorf("unexpected tag/stream: %+v", received)
	}
	if receipt.MessageID != "msg-1" || receipt.Provider != "postmark" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
}

func TestPostmarkMailerSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
	}))
	defer server.Close()

	mailer, err := NewPostmarkMailer(PostmarkSettings{
		ServerToken: "test-token",
		From:        "no-reply@example.com",
		Endpoint:    server.URL,
	})
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}

	_, err = mailer.Send(context.Background(), Message{To: []string{"a@b.com"}, Subject: "x", Body: "y"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.ErrorCode != 300 {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}
