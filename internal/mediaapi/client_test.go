package mediaapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "2025-06-26", srv.Client(), slog.Default())
}

func TestClient_Initiate(t *testing.T) {
	var got model.InitiateRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathInitiate, r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("X-Authorization"))
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "2025-06-26", r.Header.Get("X-Fanvue-API-Version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"media_uuid":"m-1","uploadId":"u-1"}`)
	})

	out, err := c.Initiate(context.Background(), "tok-1", model.InitiateRequest{Filename: "a.jpg", MediaType: "image"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", out.MediaUUID)
	assert.Equal(t, "u-1", out.UploadID)
	assert.Equal(t, model.InitiateRequest{Filename: "a.jpg", MediaType: "image"}, got)
}

func TestClient_PartURL(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]any{"media_uuid": "m-1", "uploadId": "u-1", "partNumber": float64(2)}, req)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "https://bucket.example.com/part-2?sig=abc\n")
	})

	signed, err := c.WithToken("tok-1").PartURL(context.Background(), model.PartURLRequest{MediaUUID: "m-1", UploadID: "u-1", PartNumber: 2})
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example.com/part-2?sig=abc", signed)
}

func TestClient_Finalise(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathFinalise, r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m-1", req["mediaUuid"])
		assert.Equal(t, []any{
			map[string]any{"ETag": `"e1"`, "PartNumber": float64(1)},
			map[string]any{"PartNumber": float64(2)},
		}, req["parts"])
		_, _ = io.WriteString(w, `{"processed_url":"https://cdn.example.com/m-1","status":4}`)
	})

	out, err := c.Finalise(context.Background(), "tok-1", model.FinalizeRequest{
		MediaUUID: "m-1",
		UploadID:  "u-1",
		Parts:     []model.CompletedPart{{ETag: `"e1"`, PartNumber: 1}, {PartNumber: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/m-1", out.ProcessedURL)
	assert.Equal(t, model.ProcessingReady, out.Status)
}

func TestClient_UpstreamError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: "token expired", sentinel: ErrUnauthorized, message: "token expired"},
		{name: "server error without body", status: http.StatusBadGateway, sentinel: ErrServerError, message: "Upstream error"},
		{name: "validation", status: http.StatusUnprocessableEntity, body: `{"message":"bad filename"}`, message: `{"message":"bad filename"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Initiate(context.Background(), "tok", model.InitiateRequest{Filename: "a"})
			var uerr *UpstreamError
			require.True(t, errors.As(err, &uerr))
			assert.Equal(t, tt.status, uerr.Status)
			assert.Equal(t, tt.message, uerr.Message())
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}
}

func TestClient_DoesNotFollowRedirects(t *testing.T) {
	var hits int
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Redirect(w, r, "/login", http.StatusFound)
	})

	_, err := c.Post(context.Background(), "tok", PathInitiate, map[string]string{"filename": "a"})
	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, http.StatusFound, uerr.Status)
	assert.Equal(t, "/login", uerr.Location)
	assert.ErrorIs(t, err, ErrRedirected)
	assert.Equal(t, 1, hits)
}

func TestClient_CurrentUser(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathCurrentUser, r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Authorization"))
		_, _ = io.WriteString(w, `{"uuid":"user-1","handle":"creator"}`)
	})

	profile, err := c.CurrentUser(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"uuid":"user-1","handle":"creator"}`, string(profile))
}

func TestClient_NoAPIVersionHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Fanvue-Api-Version"]
		assert.False(t, present)
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", nil, nil).CurrentUser(context.Background(), "tok")
	require.NoError(t, err)
}
