package ari

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "u", "p", "omnivoice"), srv
}

func TestClient_Answer(t *testing.T) {
	var gotPath, gotMethod string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)
		w.WriteHeader(http.StatusOK)
	})

	err := client.Answer(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, "/channels/chan-1/answer", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestClient_OriginateReturnsChannelID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PJSIP/200", r.URL.Query().Get("endpoint"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"consult-1"}`))
	})

	id, err := client.Originate(context.Background(), "PJSIP/200", "5551234")
	require.NoError(t, err)
	assert.Equal(t, "consult-1", id)
}

func TestClient_NonSuccessStatusReturnsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.Hangup(context.Background(), "missing", "normal")
	require.Error(t, err)
}

func TestClient_DeviceState(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deviceStates/PJSIP%2F200", r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"state":"NOT_INUSE"}`))
	})

	state, err := client.DeviceState(context.Background(), "PJSIP/200")
	require.NoError(t, err)
	assert.Equal(t, "NOT_INUSE", state)
}
