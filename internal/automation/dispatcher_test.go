package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchSendsSecretAndPayload(t *testing.T) {
	var (
		gotSecret      string
		gotQuerySecret string
		gotBody        map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Webhook-Secret")
		gotQuerySecret = r.URL.Query().Get("secret")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(5*time.Second, nil)
	auto := Automation{ID: "a1", WebhookURL: server.URL}
	result := d.Dispatch(context.Background(), auto, "s3cret", map[string]string{"event": "message_received"})

	require.True(t, result.Succeeded(), "dispatch should succeed: %v", result.Err)
	assert.Equal(t, "s3cret", gotSecret)
	assert.Equal(t, "s3cret", gotQuerySecret)
	assert.Equal(t, "message_received", gotBody["event"])
	assert.Empty(t, result.ErrorDetail())
}

func TestDispatchKeepsExistingQuerySecret(t *testing.T) {
	var gotQuerySecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuerySecret = r.URL.Query().Get("secret")
	}))
	defer server.Close()

	d := NewDispatcher(5*time.Second, nil)
	auto := Automation{WebhookURL: server.URL + "?secret=fromurl"}
	result := d.Dispatch(context.Background(), auto, "fromsettings", nil)

	require.True(t, result.Succeeded())
	assert.Equal(t, "fromurl", gotQuerySecret)
}

func TestDispatchReportsEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(5*time.Second, nil)
	result := d.Dispatch(context.Background(), Automation{WebhookURL: server.URL}, "", nil)

	assert.False(t, result.Succeeded())
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Contains(t, result.ErrorDetail(), "endpoint returned 500")
}

func TestDispatchReportsUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	d := NewDispatcher(time.Second, nil)
	result := d.Dispatch(context.Background(), Automation{WebhookURL: server.URL}, "", nil)

	assert.False(t, result.Succeeded())
	require.Error(t, result.Err)
	assert.NotEmpty(t, result.ErrorDetail())
}

func TestDispatchRespectsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	d := NewDispatcher(50*time.Millisecond, nil)
	result := d.Dispatch(context.Background(), Automation{WebhookURL: server.URL}, "", nil)

	assert.False(t, result.Succeeded())
	require.Error(t, result.Err)
}

func TestDispatchRejectsInvalidURL(t *testing.T) {
	d := NewDispatcher(time.Second, nil)
	result := d.Dispatch(context.Background(), Automation{WebhookURL: "://bad"}, "", nil)
	require.Error(t, result.Err)
}
