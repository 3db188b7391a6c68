package gin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arloliu/otxray"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inboundHeader = "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRecorder(t *testing.T, opts ...otxray.Option) (*otxray.Recorder, *otxray.RecordingEmitter) {
	t.Helper()

	em := &otxray.RecordingEmitter{}
	opts = append([]otxray.Option{
		otxray.WithEmitter(em),
		otxray.WithSampler(otxray.SamplerFunc(func(otxray.SamplingRequest) bool { return true })),
		otxray.WithLogger(otxray.NopLogger()),
	}, opts...)

	rec, err := otxray.Setup(context.Background(), &otxray.Config{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Shutdown(context.Background()) })

	return rec, em
}

func newEngine(rec *otxray.Recorder, opts ...Option) *gin.Engine {
	r := gin.New()
	r.Use(Middleware(rec, opts...))

	return r
}

func perform(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestMiddleware_RecordsSegment(t *testing.T) {
	rec, em := newTestRecorder(t)
	r := newEngine(rec)

	var fromCtx, fromGin *otxray.Segment
	r.GET("/orders/:id", func(c *gin.Context) {
		fromCtx = otxray.Current(c.Request.Context())
		fromGin = Segment(c)
		c.JSON(http.StatusCreated, gin.H{"id": c.Param("id")})
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/7", nil)
	req.Header.Set(otxray.TraceHeaderName, inboundHeader)
	w := perform(r, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	segs := em.Segments()
	require.Len(t, segs, 1)
	seg := segs[0]
	assert.Equal(t, "example.com", seg.Name)
	assert.Equal(t, "1-5759e988-bd862e3fe1be46a994272793", seg.TraceID)
	assert.Equal(t, "53995c3f42cd8ad8", seg.ParentID)
	assert.Equal(t, "http://example.com/orders/7", seg.HTTP.Request.URL)
	assert.Equal(t, http.StatusCreated, seg.HTTP.Response.Status)
	assert.Positive(t, seg.HTTP.Response.ContentLength)

	require.NotNil(t, fromCtx)
	assert.Same(t, fromCtx, fromGin)
	assert.Equal(t, seg.ID, fromCtx.ID())
}

func TestMiddleware_Classification(t *testing.T) {
	rec, em := newTestRecorder(t)
	r := newEngine(rec)
	r.GET("/throttled", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	r.GET("/broken", func(c *gin.Context) { c.String(http.StatusBadGateway, "upstream down") })

	perform(r, httptest.NewRequest(http.MethodGet, "/throttled", nil))
	perform(r, httptest.NewRequest(http.MethodGet, "/broken", nil))
	perform(r, httptest.NewRequest(http.MethodGet, "/missing", nil))

	segs := em.Segments()
	require.Len(t, segs, 3)

	assert.True(t, segs[0].Error)
	assert.True(t, segs[0].Throttle)
	assert.False(t, segs[0].Fault)

	assert.True(t, segs[1].Fault)
	assert.False(t, segs[1].Error)

	assert.Equal(t, http.StatusNotFound, segs[2].HTTP.Response.Status)
	assert.True(t, segs[2].Error)
}

func TestMiddleware_ContextErrorsRecorded(t *testing.T) {
	rec, em := newTestRecorder(t)
	r := newEngine(rec)
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("database unavailable"))
		c.Status(http.StatusInternalServerError)
	})
	r.GET("/gone", func(c *gin.Context) {
		_ = c.Error(errors.New("no such order"))
		c.Status(http.StatusNotFound)
	})

	perform(r, httptest.NewRequest(http.MethodGet, "/fail", nil))
	perform(r, httptest.NewRequest(http.MethodGet, "/gone", nil))

	segs := em.Segments()
	require.Len(t, segs, 2)

	require.Len(t, segs[0].Exceptions, 1)
	assert.Equal(t, "database unavailable", segs[0].Exceptions[0].Message)
	assert.True(t, segs[0].Fault)

	assert.Empty(t, segs[1].Exceptions, "404 drops error detail")
	assert.True(t, segs[1].Error)
}

func TestMiddleware_PanicRecordedAsFault(t *testing.T) {
	rec, em := newTestRecorder(t)

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.Use(Middleware(rec))
	r.GET("/explode", func(*gin.Context) { panic("boom") })

	w := perform(r, httptest.NewRequest(http.MethodGet, "/explode", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	segs := em.Segments()
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Fault)
	require.Len(t, segs[0].Exceptions, 1)
	assert.Contains(t, segs[0].Exceptions[0].Message, "boom")
}

func TestMiddleware_EchoesRequestedDecision(t *testing.T) {
	rec, _ := newTestRecorder(t)
	r := newEngine(rec)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(otxray.TraceHeaderName, "Root=1-5759e988-bd862e3fe1be46a994272793;Sampled=?")
	w := perform(r, req)

	assert.Equal(t, "Root=1-5759e988-bd862e3fe1be46a994272793;Sampled=1", w.Header().Get(otxray.TraceHeaderName))
}

func TestMiddleware_ClientDisconnect(t *testing.T) {
	rec, em := newTestRecorder(t)
	r := newEngine(rec)

	release := make(chan struct{})
	r.GET("/slow", func(c *gin.Context) {
		c.Status(http.StatusAccepted)
		<-release
	})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/slow", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		perform(r, req)
	}()

	cancel()
	require.Eventually(t, func() bool { return len(em.Segments()) == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	<-done
	assert.Len(t, em.Segments(), 1, "handler return after disconnect is a no-op")
}

func TestMiddleware_ManualMode(t *testing.T) {
	rec, em := newTestRecorder(t, otxray.WithManualMode())
	r := newEngine(rec)

	r.GET("/", func(c *gin.Context) {
		assert.Nil(t, otxray.FromContext(c.Request.Context()))
		assert.Panics(t, func() { otxray.Current(c.Request.Context()) })

		seg := Segment(c)
		if assert.NotNil(t, seg) {
			_ = seg.AddAnnotation("hitController", true)
		}
		c.Status(http.StatusOK)
	})

	perform(r, httptest.NewRequest(http.MethodGet, "/", nil))

	segs := em.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, true, segs[0].Annotations["hitController"])
}

func TestMiddleware_Filter(t *testing.T) {
	rec, em := newTestRecorder(t)
	r := newEngine(rec, WithFilter(func(c *gin.Context) bool {
		return c.Request.URL.Path != "/healthz"
	}))
	r.GET("/healthz", func(c *gin.Context) {
		assert.Nil(t, Segment(c))
		c.Status(http.StatusOK)
	})

	perform(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, em.Segments())
}

func TestMiddleware_ForwardedFor(t *testing.T) {
	rec, em := newTestRecorder(t)
	r := newEngine(rec)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	perform(r, req)

	segs := em.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, "203.0.113.9", segs[0].HTTP.Request.ClientIP)
	assert.True(t, segs[0].HTTP.Request.XForwardedFor)
}

func TestMiddleware_BaggageAnnotations(t *testing.T) {
	rec, em := newTestRecorder(t)
	r := newEngine(rec, WithBaggageAnnotations("tenant"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("baggage", "tenant=acme,region=eu")
	perform(r, req)

	segs := em.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, "acme", segs[0].Annotations["tenant"])
	assert.NotContains(t, segs[0].Annotations, "region")
}

func TestStatusWriter_StatusFixedOnceWritten(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	sw := &statusWriter{ResponseWriter: c.Writer}

	sw.WriteHeader(http.StatusNotFound)
	sw.WriteHeader(http.StatusCreated)
	_, err := sw.WriteString("created")
	require.NoError(t, err)
	sw.WriteHeader(http.StatusInternalServerError)

	got := sw.completion()
	assert.Equal(t, http.StatusCreated, got.Status)
	assert.Equal(t, int64(len("created")), got.ContentLength)
}
