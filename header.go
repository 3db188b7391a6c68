package otxray

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// TraceHeaderName is the HTTP header carrying X-Ray trace context.
const TraceHeaderName = "X-Amzn-Trace-Id"

// SamplingDecision is the sampling field of a trace header.
type SamplingDecision int

const (
	// SampledUnknown means the header carried no sampling field.
	SampledUnknown SamplingDecision = iota
	// SampledTrue is "Sampled=1".
	SampledTrue
	// SampledFalse is "Sampled=0".
	SampledFalse
	// SampledRequested is "Sampled=?": the caller asks for the decision to be echoed back.
	SampledRequested
)

// String returns the wire representation, or "" for SampledUnknown.
func (d SamplingDecision) String() string {
	switch d {
	case SampledTrue:
		return "1"
	case SampledFalse:
		return "0"
	case SampledRequested:
		return "?"
	default:
		return ""
	}
}

func parseSamplingDecision(v string) SamplingDecision {
	switch v {
	case "1":
		return SampledTrue
	case "0":
		return SampledFalse
	case "?":
		return SampledRequested
	default:
		return SampledUnknown
	}
}

func decisionOf(sampled bool) SamplingDecision {
	if sampled {
		return SampledTrue
	}

	return SampledFalse
}

// TraceHeader is the parsed form of an X-Amzn-Trace-Id value.
// Every field is independently optional.
type TraceHeader struct {
	Root    string
	Parent  string
	Sampled SamplingDecision
}

// ParseTraceHeader parses a raw header value such as
// "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1".
//
// Parsing never fails: malformed pairs and unknown keys are skipped and the
// corresponding fields stay empty.
func ParseTraceHeader(raw string) TraceHeader {
	var h TraceHeader
	for part := range strings.SplitSeq(raw, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "root":
			h.Root = value
		case "parent":
			h.Parent = value
		case "sampled":
			h.Sampled = parseSamplingDecision(value)
		}
	}

	return h
}

// IsZero reports whether no field was present.
func (h TraceHeader) IsZero() bool {
	return h.Root == "" && h.Parent == "" && h.Sampled == SampledUnknown
}

// String serializes the header, omitting absent fields.
func (h TraceHeader) String() string {
	var b strings.Builder
	write := func(key, value string) {
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}

	write("Root", h.Root)
	write("Parent", h.Parent)
	write("Sampled", h.Sampled.String())

	return b.String()
}

// NewTraceID mints a trace ID in the "1-<epoch hex>-<96 bit random hex>" format.
func NewTraceID() string {
	return newTraceIDAt(time.Now())
}

func newTraceIDAt(t time.Time) string {
	epoch := strconv.FormatInt(t.Unix(), 16)
	if len(epoch) < 8 {
		epoch = strings.Repeat("0", 8-len(epoch)) + epoch
	}

	return "1-" + epoch + "-" + randomHex(12)
}

// NewSegmentID returns a random 64 bit identifier as 16 hex characters.
func NewSegmentID() string {
	return randomHex(8)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(buf)

	return hex.EncodeToString(buf)
}
