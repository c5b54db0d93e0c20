package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/vertical-converter/internal/convert"
	"github.com/maauso/vertical-converter/internal/media"
	"github.com/maauso/vertical-converter/internal/requestid"
	"github.com/maauso/vertical-converter/internal/storage"
)

// mockTranscoder implements media.Transcoder for testing.
type mockTranscoder struct {
	mock.Mock
}

func (m *mockTranscoder) Transcode(ctx context.Context, input, output string, opts media.Options) error {
	args := m.Called(ctx, input, output, opts)
	return args.Error(0)
}

func (m *mockTranscoder) Probe(ctx context.Context, path string) (media.ProbeResult, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(media.ProbeResult), args.Error(1)
}

// writeOutput makes a Transcode expectation write content to the output path.
func writeOutput(content string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		_ = os.WriteFile(args.String(2), []byte(content), 0o600)
	}
}

type testEnv struct {
	router     http.Handler
	transcoder *mockTranscoder
	store      *storage.LocalStorage
}

func setupTestEnv(t *testing.T, opts ...HandlerOption) *testEnv {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	transcoder := &mockTranscoder{}
	transcoder.On("Probe", mock.Anything, mock.Anything).
		Return(media.ProbeResult{}, media.ErrProbeDisabled).Maybe()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := convert.NewService(transcoder, store, logger)
	h := NewHandlers(svc, logger, opts...)

	return &testEnv{
		router:     NewRouter(h, logger, DefaultConfig()),
		transcoder: transcoder,
		store:      store,
	}
}

// tempFiles lists what is left in the storage directory.
func (e *testEnv) tempFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.store.TempDir())
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// buildUpload encodes fields and an optional "video" file as multipart/form-data.
func buildUpload(t *testing.T, fields map[string]string, video string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if video != "" {
		fw, err := w.CreateFormFile("video", "clip.mov")
		require.NoError(t, err)
		_, err = fw.Write([]byte(video))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newConvertRequest(t *testing.T, fields map[string]string, video string) *http.Request {
	t.Helper()
	body, contentType := buildUpload(t, fields, video)
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func assertCORSHeaders(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestConvert_Defaults(t *testing.T) {
	env := setupTestEnv(t)
	want := media.Options{Fit: media.FitCover, Format: media.FormatMP4, FPS: 30}
	env.transcoder.On("Transcode", mock.Anything, mock.Anything, mock.Anything, want).
		Run(writeOutput("vertical mp4")).
		Return(nil)

	rec := env.serve(newConvertRequest(t, nil, "source video"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="converted_1080x1920.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "12", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Header().Get("Content-Transfer-Encoding"))
	assert.Equal(t, "vertical mp4", rec.Body.String())
	assertCORSHeaders(t, rec)

	assert.Empty(t, env.tempFiles(t))
	env.transcoder.AssertExpectations(t)
}

func TestConvert_ResolvesOptions(t *testing.T) {
	tests := []struct {
		name        string
		fields      map[string]string
		wantOpts    media.Options
		contentType string
		filename    string
		filter      string
	}{
		{
			name:        "webm contain 24fps",
			fields:      map[string]string{"format": "webm", "fit": "contain", "fps": "24"},
			wantOpts:    media.Options{Fit: media.FitContain, Format: media.FormatWebM, FPS: 24},
			contentType: "video/webm",
			filename:    "converted_1080x1920.webm",
			filter:      "scale=w=1080:h=1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black",
		},
		{
			name:        "explicit cover",
			fields:      map[string]string{"fit": "cover"},
			wantOpts:    media.Options{Fit: media.FitCover, Format: media.FormatMP4, FPS: 30},
			contentType: "video/mp4",
			filename:    "converted_1080x1920.mp4",
			filter:      "scale=w=1080:h=1920:force_original_aspect_ratio=increase,crop=1080:1920",
		},
		{
			name:        "unknown values fall back",
			fields:      map[string]string{"format": "avi", "fit": "stretch", "fps": "fast"},
			wantOpts:    media.Options{Fit: media.FitCover, Format: media.FormatMP4, FPS: 30},
			contentType: "video/mp4",
			filename:    "converted_1080x1920.mp4",
			filter:      "scale=w=1080:h=1920:force_original_aspect_ratio=increase,crop=1080:1920",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			var got media.Options
			env.transcoder.On("Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					got = args.Get(3).(media.Options)
					writeOutput("out")(args)
				}).
				Return(nil)

			rec := env.serve(newConvertRequest(t, tt.fields, "source"))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), tt.filename)

			assert.Equal(t, tt.wantOpts, got)
			assert.Equal(t, tt.filter, media.ScaleFilter(got.Fit))
			args := media.BuildArgs("in", "out", got)
			assert.Contains(t, args, tt.filter)
			assert.Contains(t, strings.Join(args, " "), "-r "+strconv.Itoa(tt.wantOpts.FPS))
			env.transcoder.AssertExpectations(t)
		})
	}
}

func TestConvert_NoFile(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.serve(newConvertRequest(t, map[string]string{"fit": "contain"}, ""))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Error: "))
	assert.Contains(t, rec.Body.String(), "Nenhum arquivo enviado")
	assertCORSHeaders(t, rec)
	env.transcoder.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConvert_Preflight(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/convert", strings.NewReader("ignored"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := env.serve(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assertCORSHeaders(t, rec)
}

func TestConvert_MethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := env.serve(httptest.NewRequest(method, "/convert", nil))

			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, "Use POST", rec.Body.String())
			assertCORSHeaders(t, rec)
		})
	}
}

func TestConvert_EngineFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.transcoder.On("Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&media.FFmpegError{
			Stderr: "Invalid data found when processing input",
			Err:    errors.New("exit status 1"),
		})

	rec := env.serve(newConvertRequest(t, nil, "not a video"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error: ffmpeg error: exit status 1: Invalid data found when processing input", rec.Body.String())
	assertCORSHeaders(t, rec)
	assert.Empty(t, env.tempFiles(t))
}

func TestConvert_EmptyBody(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := env.serve(req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error: decode multipart: read multipart: unexpected end of form", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "Nenhum arquivo enviado")
	assertCORSHeaders(t, rec)
	env.transcoder.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConvert_EngineFailureWithoutCause(t *testing.T) {
	env := setupTestEnv(t)
	env.transcoder.On("Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&media.FFmpegError{Stderr: "boom"})

	rec := env.serve(newConvertRequest(t, nil, "source"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error: ffmpeg error: <nil>: boom", rec.Body.String())
	assert.Empty(t, env.tempFiles(t))
}

func TestConvert_MalformedBody(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("missing boundary", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader("data"))
		req.Header.Set("Content-Type", "multipart/form-data")
		rec := env.serve(req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Error: decode multipart")
		assertCORSHeaders(t, rec)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(`{"video":1}`))
		req.Header.Set("Content-Type", "application/json")
		rec := env.serve(req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Error: decode multipart")
	})

	t.Run("truncated body", func(t *testing.T) {
		body, contentType := buildUpload(t, nil, strings.Repeat("v", 4096))
		truncated := body.Bytes()[:body.Len()-200]
		req := httptest.NewRequest(http.MethodPost, "/convert", bytes.NewReader(truncated))
		req.Header.Set("Content-Type", contentType)
		rec := env.serve(req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, env.tempFiles(t))
	})

	env.transcoder.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConvert_Base64Transport(t *testing.T) {
	env := setupTestEnv(t)
	env.transcoder.On("Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(writeOutput("vertical mp4")).
		Return(nil)

	body, contentType := buildUpload(t, map[string]string{"fps": "25"}, "source")
	encoded := base64.StdEncoding.EncodeToString(body.Bytes())
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(encoded))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Transfer-Encoding", "base64")
	rec := env.serve(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "base64", rec.Header().Get("Content-Transfer-Encoding"))
	want := base64.StdEncoding.EncodeToString([]byte("vertical mp4"))
	assert.Equal(t, want, rec.Body.String())
	assert.Equal(t, "16", rec.Header().Get("Content-Length"))

	env.transcoder.AssertCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything,
		media.Options{Fit: media.FitCover, Format: media.FormatMP4, FPS: 25})
}

func TestConvert_Base64ResponseOption(t *testing.T) {
	env := setupTestEnv(t, WithBase64Response(true))
	env.transcoder.On("Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(writeOutput("webm bytes")).
		Return(nil)

	rec := env.serve(newConvertRequest(t, map[string]string{"format": "webm"}, "source"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "video/webm", rec.Header().Get("Content-Type"))
	assert.Equal(t, "base64", rec.Header().Get("Content-Transfer-Encoding"))

	decoded, err := base64.StdEncoding.DecodeString(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "webm bytes", string(decoded))
}

func TestConvert_UploadTooLarge(t *testing.T) {
	env := setupTestEnv(t, WithMaxUploadBytes(256))

	rec := env.serve(newConvertRequest(t, nil, strings.Repeat("x", 4096)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Error: decode multipart: "), rec.Body.String())
	assert.Contains(t, rec.Body.String(), "http: request body too large")
	assertCORSHeaders(t, rec)
	assert.Empty(t, env.tempFiles(t))
	env.transcoder.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestID(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("generated when absent", func(t *testing.T) {
		rec := env.serve(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.True(t, strings.HasPrefix(rec.Header().Get(requestid.Header), "req-"))
	})

	t.Run("echoes a valid client ID", func(t *testing.T) {
		id := requestid.Generate()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(requestid.Header, id)
		rec := env.serve(req)
		assert.Equal(t, id, rec.Header().Get(requestid.Header))
	})

	t.Run("replaces a malformed client ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(requestid.Header, "bogus")
		rec := env.serve(req)
		got := rec.Header().Get(requestid.Header)
		assert.NotEqual(t, "bogus", got)
		assert.True(t, strings.HasPrefix(got, "req-"))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	// Generate at least one observation.
	env.serve(httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vertical_converter_http_requests_total")
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(logger)(
		CORSMiddleware([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/convert", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error: internal server error", rec.Body.String())
	assertCORSHeaders(t, rec)
}

func TestCORSMiddleware_AllowList(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := CORSMiddleware([]string{"https://app.example.com"})(next)

	t.Run("listed origin is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/convert", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("other origin gets no allow-origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/convert", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})
}

func TestChainMiddleware_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := ChainMiddleware(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}
