package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/psprofi/audiocache/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	srv := New("127.0.0.1:25665", &telemetry.Telemetry{})

	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, []byte("0123456789abcdef"), 0644))

	return srv, path
}

func get(t *testing.T, srv *Server, url string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, url, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	return rec
}

func TestServer_Register_Deterministic(t *testing.T) {
	srv, path := newTestServer(t)

	url1, err := srv.Register(path)
	require.NoError(t, err)

	url2, err := srv.Register(path)
	require.NoError(t, err)

	assert.Equal(t, url1, url2)
	assert.True(t, strings.HasPrefix(url1, "http://127.0.0.1:25665/audio/"))

	id := strings.TrimPrefix(url1, "http://127.0.0.1:25665/audio/")
	assert.Len(t, id, 8)
}

func TestServer_FullBody(t *testing.T) {
	srv, path := newTestServer(t)

	url, err := srv.Register(path)
	require.NoError(t, err)

	route := strings.TrimPrefix(url, "http://127.0.0.1:25665")
	rec := get(t, srv, route, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "public, max-age=31536000", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "16", rec.Header().Get("Content-Length"))

	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "0123456789abcdef", string(body))
}

func TestServer_RangeRequests(t *testing.T) {
	srv, path := newTestServer(t)

	url, err := srv.Register(path)
	require.NoError(t, err)

	route := strings.TrimPrefix(url, "http://127.0.0.1:25665")

	tests := []struct {
		name       string
		rangeSpec  string
		wantStatus int
		wantBody   string
		wantRange  string
	}{
		{
			name:       "closed range",
			rangeSpec:  "bytes=0-3",
			wantStatus: http.StatusPartialContent,
			wantBody:   "0123",
			wantRange:  "bytes 0-3/16",
		},
		{
			name:       "open ended range",
			rangeSpec:  "bytes=10-",
			wantStatus: http.StatusPartialContent,
			wantBody:   "abcdef",
			wantRange:  "bytes 10-15/16",
		},
		{
			name:       "suffix range falls back to full body",
			rangeSpec:  "bytes=-4",
			wantStatus: http.StatusOK,
			wantBody:   "0123456789abcdef",
		},
		{
			name:       "end beyond size",
			rangeSpec:  "bytes=8-100",
			wantStatus: http.StatusRequestedRangeNotSatisfiable,
			wantRange:  "bytes */16",
		},
		{
			name:       "end exactly at size",
			rangeSpec:  "bytes=0-16",
			wantStatus: http.StatusRequestedRangeNotSatisfiable,
			wantRange:  "bytes */16",
		},
		{
			name:       "last byte",
			rangeSpec:  "bytes=15-15",
			wantStatus: http.StatusPartialContent,
			wantBody:   "f",
			wantRange:  "bytes 15-15/16",
		},
		{
			name:       "start beyond size",
			rangeSpec:  "bytes=99-",
			wantStatus: http.StatusRequestedRangeNotSatisfiable,
			wantRange:  "bytes */16",
		},
		{
			name:       "inverted range",
			rangeSpec:  "bytes=5-2",
			wantStatus: http.StatusRequestedRangeNotSatisfiable,
			wantRange:  "bytes */16",
		},
		{
			name:       "garbage falls back to full body",
			rangeSpec:  "bananas=0-3",
			wantStatus: http.StatusOK,
			wantBody:   "0123456789abcdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, route, map[string]string{"Range": tt.rangeSpec})

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantRange != "" {
				assert.Equal(t, tt.wantRange, rec.Header().Get("Content-Range"))
			}

			if tt.wantBody != "" {
				body, _ := io.ReadAll(rec.Body)
				assert.Equal(t, tt.wantBody, string(body))
			}
		})
	}
}

func TestServer_UnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/audio/deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MissingFile(t *testing.T) {
	srv, path := newTestServer(t)

	url, err := srv.Register(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	route := strings.TrimPrefix(url, "http://127.0.0.1:25665")
	rec := get(t, srv, route, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Unregister(t *testing.T) {
	srv, path := newTestServer(t)

	url, err := srv.Register(path)
	require.NoError(t, err)

	srv.Unregister(path)

	route := strings.TrimPrefix(url, "http://127.0.0.1:25665")
	rec := get(t, srv, route, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.mp3", "audio/mpeg"},
		{"a.ogg", "audio/ogg"},
		{"a.opus", "audio/ogg"},
		{"a.m4a", "audio/mp4"},
		{"a.wav", "audio/wav"},
		{"cover_thumb.jpg", "image/jpeg"},
		{"a.flac", "audio/mpeg"},
		{"noext", "audio/mpeg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, contentTypeFor(tt.path), tt.path)
	}
}
