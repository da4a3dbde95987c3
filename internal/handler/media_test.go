package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

func TestMedia_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	cookie := f.sessionCookie(t, model.TokenSet{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)})

	for _, body := range []string{"", "not json", "[1,2]", "null", `"string"`} {
		resp, err := f.media.Initiate(context.Background(), makeRequest(http.MethodPost, "/api/media/multipart/initiate", body, cookie))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
		assert.JSONEq(t, `{"error":"Invalid JSON body"}`, resp.Body)
	}

	resp, err := f.media.Initiate(context.Background(), makeRequest(http.MethodPost, "/api/media/multipart/initiate", "{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body is checked before the session")
	assert.Empty(t, f.apiRequests)
}

func TestMedia_Unauthorized(t *testing.T) {
	f := newFixture(t)

	resp, err := f.media.PartURL(context.Background(), makeRequest(http.MethodPost, "/api/media/multipart/part-url", `{"partNumber":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, resp.Body)
	assert.Empty(t, f.apiRequests)
}

func TestMedia_Initiate(t *testing.T) {
	f := newFixture(t)
	f.apiBody = `{"media_uuid":"m-1","uploadId":"u-1"}`
	cookie := f.sessionCookie(t, model.TokenSet{AccessToken: "access-1", ExpiresAt: time.Now().Add(time.Hour)})

	resp, err := f.media.Initiate(context.Background(), makeRequest(http.MethodPost, "/api/media/multipart/initiate",
		`{"filename":"photo.jpg","mediaType":"image"}`, cookie))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.JSONEq(t, f.apiBody, resp.Body)

	require.Len(t, f.apiRequests, 1)
	got := f.apiRequests[0]
	assert.Equal(t, "/media/multipart/initiate", got.URL.Path)
	assert.Equal(t, "Bearer access-1", got.Header.Get("X-Authorization"))
	assert.Equal(t, "2025-06-26", got.Header.Get("X-Fanvue-API-Version"))
	assert.JSONEq(t, `{"filename":"photo.jpg","mediaType":"image"}`, f.apiBodies[0])
}

func TestMedia_PartURLIsPlainText(t *testing.T) {
	f := newFixture(t)
	f.apiBody = "https://bucket.example.com/upload?partNumber=1&sig=abc"
	cookie := f.sessionCookie(t, model.TokenSet{AccessToken: "access-1", ExpiresAt: time.Now().Add(time.Hour)})

	resp, err := f.media.PartURL(context.Background(), makeRequest(http.MethodPost, "/api/media/multipart/part-url",
		`{"media_uuid":"m-1","uploadId":"u-1","partNumber":1}`, cookie))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Headers["Content-Type"])
	assert.Equal(t, f.apiBody, resp.Body)
}

func TestMedia_Finalise(t *testing.T) {
	f := newFixture(t)
	f.apiBody = `{"processed_url":"https://cdn.example.com/m-1","status":3}`
	cookie := f.sessionCookie(t, model.TokenSet{AccessToken: "access-1", ExpiresAt: time.Now().Add(time.Hour)})
	body := `{"mediaUuid":"m-1","uploadId":"u-1","parts":[{"ETag":"\"e1\"","PartNumber":1},{"PartNumber":2}]}`

	resp, err := f.media.Finalise(context.Background(), makeRequest(http.MethodPost, "/api/media/multipart/finalise", body, cookie))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out model.FinalizeResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	assert.Equal(t, model.ProcessingPending, out.Status)
	assert.JSONEq(t, body, f.apiBodies[0])
}

func TestMedia_UpstreamErrorIsRelayed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "with text", status: http.StatusForbidden, body: "Media quota exceeded", want: `{"error":"Media quota exceeded"}`},
		{name: "empty body", status: http.StatusBadGateway, want: `{"error":"Upstream error"}`},
		{name: "redirect", status: http.StatusFound, want: `{"error":"Upstream error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.apiStatus = tt.status
			f.apiBody = tt.body
			cookie := f.sessionCookie(t, model.TokenSet{AccessToken: "access-1", ExpiresAt: time.Now().Add(time.Hour)})

			resp, err := f.media.Initiate(context.Background(), makeRequest(http.MethodPost, "/api/media/multipart/initiate", `{"filename":"a"}`, cookie))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.JSONEq(t, tt.want, resp.Body)
		})
	}
}
