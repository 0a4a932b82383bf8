package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hbomb79/Siphon/internal/api"
	"github.com/hbomb79/Siphon/internal/extraction"
	"github.com/hbomb79/Siphon/internal/extraction/mocks"
	"github.com/hbomb79/Siphon/internal/storage"
	"github.com/hbomb79/Siphon/internal/ytdlp"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sampleURL = "https://media.example.com/watch?v=sample"

type harness struct {
	gateway *api.RestGateway
	engine  *mocks.MockEngine
	store   *storage.Store
}

func newHarness(t *testing.T) *harness {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	engine := mocks.NewMockEngine(t)
	client := extraction.New(engine, store)
	return &harness{
		gateway: api.NewRestGateway(&api.RestConfig{}, client, store),
		engine:  engine,
		store:   store,
	}
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.gateway.ServeHTTP(rec, req)
	return rec
}

func (h *harness) postJSON(t *testing.T, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return h.do(t, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	assert.Equal(t, map[string]any{"error": message}, decodeBody(t, rec))
}

// fetchWriting returns an engine Fetch implementation which writes content to the
// directory of the output template, as yt-dlp would, and reports the written path
// in requested_downloads.
func fetchWriting(title string, written string, ext string, content string, filesize *int64) func(context.Context, string, string, string) (*ytdlp.Info, error) {
	return func(_ context.Context, _ string, _ string, template string) (*ytdlp.Info, error) {
		path := filepath.Join(filepath.Dir(template), written+"."+ext)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		return &ytdlp.Info{
			Title:              title,
			Ext:                ext,
			Filesize:           filesize,
			RequestedDownloads: []ytdlp.Download{{Filepath: path, Filename: path}},
		}, nil
	}
}

func sampleInfo() *ytdlp.Info {
	height := 360
	return &ytdlp.Info{
		Title:     "Sample Clip",
		Thumbnail: "https://img.example.com/sample.jpg",
		Formats: []ytdlp.Format{
			{FormatID: "140", FormatNote: "medium", Ext: "m4a", URL: "https://cdn.example.com/140", ACodec: "mp4a.40.2", VCodec: "none"},
			{FormatID: "18", Ext: "mp4", URL: "https://cdn.example.com/18", ACodec: "mp4a.40.2", VCodec: "avc1.42001E", Height: &height},
		},
	}
}

func TestExtract_ListsFormats(t *testing.T) {
	h := newHarness(t)
	h.engine.EXPECT().Probe(mock.Anything, sampleURL).Return(sampleInfo(), nil)

	rec := h.postJSON(t, "/extract", `{"url":"`+sampleURL+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, map[string]any{
		"title":         "Sample Clip",
		"thumbnail_url": "https://img.example.com/sample.jpg",
		"formats": []any{
			map[string]any{"format_id": "140", "quality": "medium", "type": "Audio", "ext": "m4a", "url": "https://cdn.example.com/140"},
			map[string]any{"format_id": "18", "quality": "360p", "type": "Video", "ext": "mp4", "url": "https://cdn.example.com/18"},
		},
	}, decodeBody(t, rec))
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		summary string
		info    *ytdlp.Info
		err     error
		status  int
		message string
	}{
		{
			summary: "no usable formats",
			info:    &ytdlp.Info{Title: "Empty", Formats: []ytdlp.Format{{FormatID: ""}}},
			status:  http.StatusNotFound,
			message: "No formats found",
		},
		{
			summary: "engine rejected url",
			err:     &ytdlp.EngineError{Message: "ERROR: Unsupported URL: " + sampleURL, ExitCode: 1},
			status:  http.StatusBadRequest,
			message: "Download error: ERROR: Unsupported URL: " + sampleURL,
		},
		{
			summary: "unclassified failure",
			err:     errors.New("pipe closed"),
			status:  http.StatusInternalServerError,
			message: "An unexpected error occurred: pipe closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			h := newHarness(t)
			h.engine.EXPECT().Probe(mock.Anything, sampleURL).Return(tt.info, tt.err)

			rec := h.postJSON(t, "/extract", `{"url":"`+sampleURL+`"}`)
			assertError(t, rec, tt.status, tt.message)
		})
	}
}

func TestExtract_InvalidRequests(t *testing.T) {
	bodies := map[string]string{
		"missing url":    `{}`,
		"empty url":      `{"url":""}`,
		"blank url":      `{"url":"   "}`,
		"malformed body": `{"url":`,
		"empty body":     ``,
	}

	for summary, body := range bodies {
		t.Run(summary, func(t *testing.T) {
			h := newHarness(t)

			rec := h.postJSON(t, "/extract", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.True(t, strings.HasPrefix(decodeBody(t, rec)["error"].(string), "Invalid request: "), rec.Body.String())
		})
	}
}

func TestExtract_ClientDisconnectDoesNotCancelEngine(t *testing.T) {
	h := newHarness(t)
	h.engine.EXPECT().Probe(mock.Anything, sampleURL).RunAndReturn(func(ctx context.Context, _ string) (*ytdlp.Info, error) {
		assert.NoError(t, ctx.Err())
		return sampleInfo(), nil
	})

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader(`{"url":"`+sampleURL+`"}`)).WithContext(reqCtx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := h.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSelect_InvalidRequests(t *testing.T) {
	bodies := map[string]string{
		"missing format": `{"url":"` + sampleURL + `"}`,
		"blank format":   `{"url":"` + sampleURL + `","format_id":"  "}`,
		"missing url":    `{"format_id":"18"}`,
		"malformed body": `[1, 2`,
	}

	for summary, body := range bodies {
		t.Run(summary, func(t *testing.T) {
			h := newHarness(t)

			rec := h.postJSON(t, "/select", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.True(t, strings.HasPrefix(decodeBody(t, rec)["error"].(string), "Invalid request: "), rec.Body.String())
		})
	}
}

func TestSelect_MissingFile(t *testing.T) {
	h := newHarness(t)
	h.engine.EXPECT().Fetch(mock.Anything, sampleURL, "18", mock.Anything).
		Return(&ytdlp.Info{Title: "Ghost", Ext: "mp4", RequestedDownloads: []ytdlp.Download{{Filepath: filepath.Join(h.store.Dir(), "Ghost.mp4")}}}, nil)

	rec := h.postJSON(t, "/select", `{"url":"`+sampleURL+`","format_id":"18"}`)
	assertError(t, rec, http.StatusBadRequest, "Failed to download video")
}

func TestSelect_EngineFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.EXPECT().Fetch(mock.Anything, sampleURL, "999", mock.Anything).
		Return(nil, &ytdlp.EngineError{Message: "ERROR: Requested format is not available", ExitCode: 1})

	rec := h.postJSON(t, "/select", `{"url":"`+sampleURL+`","format_id":"999"}`)
	assertError(t, rec, http.StatusBadRequest, "Download error: ERROR: Requested format is not available")
}

func TestDownload_NotFound(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Mkdir(filepath.Join(h.store.Dir(), "folder"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(h.store.Dir()), "secret.txt"), []byte("nope"), 0o644))

	for _, path := range []string{
		"/download/missing.mp4",
		"/download/folder",
		"/download/..%2Fsecret.txt",
		"/download/%2E%2E",
	} {
		t.Run(path, func(t *testing.T) {
			rec := h.do(t, httptest.NewRequest(http.MethodGet, path, nil))
			assertError(t, rec, http.StatusNotFound, "File not found")
		})
	}
}

func TestDownload_StreamsStoredFile(t *testing.T) {
	h := newHarness(t)
	content := strings.Repeat(random.String(64), 1024)
	require.NoError(t, os.WriteFile(filepath.Join(h.store.Dir(), "clip [1080p].webm"), []byte(content), 0o644))

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/download/clip%20%5B1080p%5D.webm", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.String())
	assert.Equal(t, `attachment; filename="clip [1080p].webm"`, rec.Header().Get(echo.HeaderContentDisposition))
}

func TestGateway_UnknownRoute(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/formats", nil))
	assertError(t, rec, http.StatusNotFound, "Not Found")
}

func TestGateway_CORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/extract", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := h.do(t, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
}

func TestGateway_RequestIDHeader(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/download/missing.mp4", nil))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

// Exercises the full extract -> select -> download workflow for both an
// audio-only and a muxed video format of the same item.
func TestWorkflow_ExtractSelectDownload(t *testing.T) {
	audioSize := int64(4096)
	tests := []struct {
		formatID     string
		ext          string
		content      string
		reportedSize *int64
		expectedSize float64
	}{
		{formatID: "140", ext: "m4a", content: "audio-bytes", reportedSize: &audioSize, expectedSize: 4096},
		{formatID: "18", ext: "mp4", content: "video-bytes-on-disk", expectedSize: float64(len("video-bytes-on-disk"))},
	}

	for _, tt := range tests {
		t.Run(tt.formatID, func(t *testing.T) {
			h := newHarness(t)
			h.engine.EXPECT().Probe(mock.Anything, sampleURL).Return(sampleInfo(), nil)
			h.engine.EXPECT().Fetch(mock.Anything, sampleURL, tt.formatID, filepath.Join(h.store.Dir(), extraction.OutputTemplate)).
				RunAndReturn(fetchWriting("Sample: Clip", "Sample: Clip", tt.ext, tt.content, tt.reportedSize))

			rec := h.postJSON(t, "/extract", `{"url":"`+sampleURL+`"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = h.postJSON(t, "/select", `{"url":"`+sampleURL+`","format_id":"`+tt.formatID+`"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			name := "Sample_ Clip." + tt.ext
			selected := decodeBody(t, rec)
			assert.Equal(t, map[string]any{
				"download_url":  "/download/Sample_%20Clip." + tt.ext,
				"thumbnail_url": extraction.DefaultThumbnailURL,
				"size":          tt.expectedSize,
				"name":          name,
				"ext":           tt.ext,
			}, selected)
			assert.FileExists(t, filepath.Join(h.store.Dir(), name))
			assert.NoFileExists(t, filepath.Join(h.store.Dir(), "Sample: Clip."+tt.ext))

			rec = h.do(t, httptest.NewRequest(http.MethodGet, selected["download_url"].(string), nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.content, rec.Body.String())
			assert.Equal(t, `attachment; filename="`+name+`"`, rec.Header().Get(echo.HeaderContentDisposition))
		})
	}
}

func TestWorkflow_SelectKeepsEngineSubstitutedName(t *testing.T) {
	h := newHarness(t)
	h.engine.EXPECT().Fetch(mock.Anything, sampleURL, "140", mock.Anything).
		RunAndReturn(fetchWriting("Song | Artist: Live", "Song ｜ Artist： Live", "m4a", "audio-bytes", nil))

	rec := h.postJSON(t, "/select", `{"url":"`+sampleURL+`","format_id":"140"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	selected := decodeBody(t, rec)
	assert.Equal(t, "Song ｜ Artist： Live.m4a", selected["name"])
	assert.Equal(t, float64(len("audio-bytes")), selected["size"])

	rec = h.do(t, httptest.NewRequest(http.MethodGet, selected["download_url"].(string), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio-bytes", rec.Body.String())
}
