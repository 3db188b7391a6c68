package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/arloliu/otxray"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) (*otxray.Recorder, *otxray.RecordingEmitter) {
	t.Helper()

	em := &otxray.RecordingEmitter{}
	rec, err := otxray.Setup(context.Background(), &otxray.Config{},
		otxray.WithEmitter(em),
		otxray.WithSampler(otxray.SamplerFunc(func(otxray.SamplingRequest) bool { return true })),
		otxray.WithLogger(otxray.NopLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Shutdown(context.Background()) })

	return rec, em
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	builders := map[string]func(*otxray.Recorder) http.Handler{
		"http": newHTTPHandler,
		"gin":  newGinHandler,
	}

	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			rec, em := newTestRecorder(t)
			h := build(rec)

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "Hello World!", w.Body.String())

			w = httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
			assert.Equal(t, http.StatusInternalServerError, w.Code)

			segs := em.Segments()
			require.Len(t, segs, 2)
			assert.Equal(t, true, segs[0].Annotations["hitController"])
			assert.False(t, segs[0].Error || segs[0].Fault)

			assert.True(t, segs[1].Fault)
			require.Len(t, segs[1].Exceptions, 1)
			assert.Equal(t, errFailRoute.Error(), segs[1].Exceptions[0].Message)
		})
	}
}

func TestRecorderConfig(t *testing.T) {
	cfg := newConfig()
	cfg.SegmentName = "example"

	xcfg, err := recorderConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "example", xcfg.SegmentName)

	path := filepath.Join(t.TempDir(), "xray.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segmentName: from-file\nplugins: host\n"), 0o600))

	cfg = newConfig()
	cfg.ConfigFile = path
	xcfg, err = recorderConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-file", xcfg.SegmentName)
	assert.Equal(t, "host", xcfg.Plugins)

	cfg.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = recorderConfig(cfg)
	require.Error(t, err)
}
