package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientReturnsFirstResult(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"status":"Accepted","exitStatus":0,"files":{"stdout":"ok\n","stderr":""}}]`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL, Timeout: time.Second, Logger: zerolog.Nop()})
	result, err := client.Run(context.Background(), NewRequest([]File{{Path: "main.py", Content: []byte("print(1)")}}, DefaultLimits()))
	require.NoError(t, err)
	require.Equal(t, "ok\n", result.Stdout())
	require.Empty(t, result.Stderr())
	require.Len(t, received.Cmd, 1)
	require.Contains(t, received.Cmd[0].CopyIn, "main.py")
}

func TestHTTPClientNon200IsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL, Timeout: time.Second, Logger: zerolog.Nop()})
	_, err := client.Run(context.Background(), NewRequest(nil, DefaultLimits()))
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.Contains(t, err.Error(), "500")
}

func TestHTTPClientEmptyArrayIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL, Timeout: time.Second, Logger: zerolog.Nop()})
	_, err := client.Run(context.Background(), NewRequest(nil, DefaultLimits()))
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestHTTPClientMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"files":`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL, Timeout: time.Second, Logger: zerolog.Nop()})
	_, err := client.Run(context.Background(), NewRequest(nil, DefaultLimits()))
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHTTPClientTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{Endpoint: server.URL, Timeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	_, err := client.Run(context.Background(), NewRequest(nil, DefaultLimits()))
	require.Error(t, err)
}
