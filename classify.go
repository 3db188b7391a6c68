package otxray

import "net/http"

// Classification holds the completion flags derived from a final status code.
type Classification struct {
	Error    bool
	Fault    bool
	Throttle bool
}

// Classify maps an HTTP status code to segment flags.
//
//   - 429: error and throttle
//   - 400-499: error
//   - 500-599: fault
//   - anything else: no flag
func Classify(status int) Classification {
	switch {
	case status == http.StatusTooManyRequests:
		return Classification{Error: true, Throttle: true}
	case status >= 400 && status < 500:
		return Classification{Error: true}
	case status >= 500 && status < 600:
		return Classification{Fault: true}
	default:
		return Classification{}
	}
}

// Outcome returns a single label for the classification: "ok", "error",
// "throttle" or "fault".
func (c Classification) Outcome() string {
	switch {
	case c.Fault:
		return "fault"
	case c.Throttle:
		return "throttle"
	case c.Error:
		return "error"
	default:
		return "ok"
	}
}
