package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSender_Send(t *testing.T) {
	var got emailPayload
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret", "billing@pixelmint.app")
	err := s.Send(context.Background(), "owner@acme.example", "Credit alert", "80% used")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "billing@pixelmint.app", got.From)
	assert.Equal(t, "owner@acme.example", got.To)
	assert.Equal(t, "Credit alert", got.Subject)
	assert.Equal(t, "80% used", got.Text)
}

func TestHTTPSender_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret", "billing@pixelmint.app")
	err := s.Send(context.Background(), "owner@acme.example", "subj", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSender_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewHTTPSender(srv.URL, "secret", "billing@pixelmint.app")
	err := s.Send(ctx, "owner@acme.example", "subj", "body")
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(slog.Default())
	assert.NoError(t, s.Send(context.Background(), "a@b.c", "subj", "body"))
}
