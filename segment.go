package otxray

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSegmentClosed is returned when mutating a segment that is no longer active.
var ErrSegmentClosed = errors.New("otxray: segment is closed")

// ErrInvalidAnnotation is returned for annotation keys or values X-Ray cannot index.
var ErrInvalidAnnotation = errors.New("otxray: invalid annotation")

// DefaultMetadataNamespace is the namespace used by [Segment.AddMetadata].
const DefaultMetadataNamespace = "default"

type segmentState int32

const (
	stateCreated segmentState = iota
	stateActive
	stateClosing
	stateClosed
)

func (s segmentState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// HTTPRequest is the inbound request part of a segment's http data.
type HTTPRequest struct {
	Method        string
	URL           string
	UserAgent     string
	ClientIP      string
	XForwardedFor bool
}

// HTTPResponse is the response part of a segment's http data.
type HTTPResponse struct {
	Status        int
	ContentLength int64
}

// HTTPData holds request and response metadata.
type HTTPData struct {
	Request  HTTPRequest
	Response HTTPResponse
}

// Exception is a recorded error cause.
type Exception struct {
	ID      string
	Type    string
	Message string
}

func newException(err error) Exception {
	return Exception{
		ID:      NewSegmentID(),
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}

// Completion carries the terminal state of a request.
type Completion struct {
	Status        int
	ContentLength int64
	Err           error
}

// Segment is the trace record of one request.
//
// A segment is safe for concurrent use. Mutators succeed only while the
// segment is active; once closing has begun they return [ErrSegmentClosed].
type Segment struct {
	state atomic.Int32

	name      string
	traceID   string
	parentID  string
	id        string
	sampled   bool
	startTime time.Time

	mu          sync.Mutex
	endTime     time.Time
	origin      string
	aws         map[string]any
	http        HTTPData
	annotations map[string]any
	metadata    map[string]map[string]any
	flags       Classification
	exceptions  []Exception
}

// NewSegment creates an active segment. A new trace ID is minted when traceID
// is empty; parentID may be empty for a root segment.
func NewSegment(name, traceID, parentID string, sampled bool) *Segment {
	if traceID == "" {
		traceID = NewTraceID()
	}

	s := &Segment{
		name:        name,
		traceID:     traceID,
		parentID:    parentID,
		id:          NewSegmentID(),
		sampled:     sampled,
		startTime:   time.Now(),
		annotations: make(map[string]any),
		metadata:    make(map[string]map[string]any),
	}
	s.state.Store(int32(stateCreated))
	s.state.Store(int32(stateActive))

	return s
}

// Name returns the segment name.
func (s *Segment) Name() string { return s.name }

// TraceID returns the trace ID.
func (s *Segment) TraceID() string { return s.traceID }

// ParentID returns the upstream segment ID, or "" for a root segment.
func (s *Segment) ParentID() string { return s.parentID }

// ID returns the segment ID.
func (s *Segment) ID() string { return s.id }

// Sampled reports whether the segment will be submitted.
func (s *Segment) Sampled() bool { return s.sampled }

// StartTime returns the creation time.
func (s *Segment) StartTime() time.Time { return s.startTime }

// EndTime returns the close time, or the zero time while the segment is open.
func (s *Segment) EndTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.endTime
}

// IsClosed reports whether closing has begun.
func (s *Segment) IsClosed() bool {
	return segmentState(s.state.Load()) >= stateClosing
}

// Flags returns the completion flags. They are only meaningful after close.
func (s *Segment) Flags() Classification {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flags
}

// DownstreamHeader returns the trace header to send on calls made on behalf
// of this segment.
func (s *Segment) DownstreamHeader() TraceHeader {
	return TraceHeader{Root: s.traceID, Parent: s.id, Sampled: decisionOf(s.sampled)}
}

func (s *Segment) mutate(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if segmentState(s.state.Load()) != stateActive {
		return ErrSegmentClosed
	}
	fn()

	return nil
}

// AddAnnotation sets an indexed annotation. Keys may contain only ASCII
// letters, digits and underscores; values must be strings, booleans or numbers.
func (s *Segment) AddAnnotation(key string, value any) error {
	if !validAnnotationKey(key) {
		return fmt.Errorf("%w: key %q", ErrInvalidAnnotation, key)
	}
	if !validAnnotationValue(value) {
		return fmt.Errorf("%w: unsupported value type %T for key %q", ErrInvalidAnnotation, value, key)
	}

	return s.mutate(func() { s.annotations[key] = value })
}

// AddMetadata sets an unindexed value in the default namespace.
func (s *Segment) AddMetadata(key string, value any) error {
	return s.AddMetadataToNamespace(DefaultMetadataNamespace, key, value)
}

// AddMetadataToNamespace sets an unindexed value in the given namespace.
func (s *Segment) AddMetadataToNamespace(namespace, key string, value any) error {
	if namespace == "" {
		namespace = DefaultMetadataNamespace
	}

	return s.mutate(func() {
		ns, ok := s.metadata[namespace]
		if !ok {
			ns = make(map[string]any)
			s.metadata[namespace] = ns
		}
		ns[key] = value
	})
}

// AddError records err as a cause. A nil err is ignored.
func (s *Segment) AddError(err error) error {
	if err == nil {
		return nil
	}

	return s.mutate(func() { s.exceptions = append(s.exceptions, newException(err)) })
}

// SetHTTPRequest records inbound request metadata.
func (s *Segment) SetHTTPRequest(req HTTPRequest) error {
	return s.mutate(func() { s.http.Request = req })
}

func (s *Segment) setPluginData(origin string, aws map[string]any) error {
	return s.mutate(func() {
		s.origin = origin
		if len(aws) > 0 {
			s.aws = maps.Clone(aws)
		}
	})
}

// finish performs the ACTIVE -> CLOSING -> CLOSED transition. Only the first
// caller wins; every later call returns false without touching the segment.
func (s *Segment) finish(c Completion, now time.Time) bool {
	if !s.state.CompareAndSwap(int32(stateActive), int32(stateClosing)) {
		return false
	}

	s.mu.Lock()
	s.flags = Classify(c.Status)
	s.http.Response = HTTPResponse{Status: c.Status, ContentLength: c.ContentLength}
	if c.Status == http.StatusNotFound {
		s.exceptions = nil
	} else if c.Err != nil {
		s.exceptions = append(s.exceptions, newException(c.Err))
	}
	s.endTime = now
	s.mu.Unlock()

	s.state.Store(int32(stateClosed))

	return true
}

// SegmentData is an immutable copy of a segment.
type SegmentData struct {
	Name        string
	TraceID     string
	ParentID    string
	ID          string
	StartTime   time.Time
	EndTime     time.Time
	Sampled     bool
	InProgress  bool
	Origin      string
	AWS         map[string]any
	HTTP        HTTPData
	Annotations map[string]any
	Metadata    map[string]map[string]any
	Error       bool
	Fault       bool
	Throttle    bool
	Exceptions  []Exception
}

// Snapshot returns a copy of the segment's current contents.
func (s *Segment) Snapshot() SegmentData {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadata := make(map[string]map[string]any, len(s.metadata))
	for ns, values := range s.metadata {
		metadata[ns] = maps.Clone(values)
	}

	return SegmentData{
		Name:        s.name,
		TraceID:     s.traceID,
		ParentID:    s.parentID,
		ID:          s.id,
		StartTime:   s.startTime,
		EndTime:     s.endTime,
		Sampled:     s.sampled,
		InProgress:  segmentState(s.state.Load()) != stateClosed,
		Origin:      s.origin,
		AWS:         maps.Clone(s.aws),
		HTTP:        s.http,
		Annotations: maps.Clone(s.annotations),
		Metadata:    metadata,
		Error:       s.flags.Error,
		Fault:       s.flags.Fault,
		Throttle:    s.flags.Throttle,
		Exceptions:  append([]Exception(nil), s.exceptions...),
	}
}

func validAnnotationKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}

	return true
}

func validAnnotationValue(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
