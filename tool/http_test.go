package tool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDefinition_RendersTemplatesAndSucceeds(t *testing.T) {
	var gotPath, gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Mailbox")
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	def := HTTPDefinition(HTTPToolSpec{
		Name:    "extension_lookup",
		Method:  http.MethodPost,
		URL:     srv.URL + "/lookup/{{.extension}}",
		Headers: map[string]string{"X-Mailbox": "{{.extension}}"},
		Body:    `{"extension":"{{.extension}}"}`,
	})

	res, err := def.Execute(context.Background(), map[string]any{"extension": "200"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "/lookup/200", gotPath)
	assert.Equal(t, "200", gotHeader)
	assert.Contains(t, gotBody, `"extension":"200"`)
	assert.Equal(t, true, res.Data["json"].(map[string]any)["ok"])
}

func TestHTTPDefinition_FailedStatusReportedAsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	def := HTTPDefinition(HTTPToolSpec{Name: "broken", Method: http.MethodGet, URL: srv.URL})
	res, err := def.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestHTTPDefinition_DefaultsMethodAndPhase(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	}))
	defer srv.Close()

	def := HTTPDefinition(HTTPToolSpec{Name: "defaults", URL: srv.URL})
	assert.Equal(t, PhaseInCall, def.Phase)

	_, err := def.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, gotMethod)
}
