// Package tracker holds process-wide recorder state shared by otxray and its
// adapter packages.
package tracker

import (
	"sync/atomic"
)

type state struct {
	automatic bool
	installed bool
}

var global atomic.Pointer[state]

func init() {
	global.Store(&state{automatic: true})
}

// Token identifies one installation made by SetMode.
type Token struct {
	s *state
}

// SetMode records the context propagation mode of the installed recorder.
// The returned token releases this installation only.
func SetMode(automatic bool) Token {
	s := &state{automatic: automatic, installed: true}
	global.Store(s)

	return Token{s: s}
}

// Release restores the initial state if t is still the current
// installation. It reports whether it did.
func Release(t Token) bool {
	if t.s == nil {
		return false
	}

	return global.CompareAndSwap(t.s, &state{automatic: true})
}

// Reset restores the initial state (automatic mode, nothing installed).
func Reset() {
	global.Store(&state{automatic: true})
}

// Automatic reports whether the installed recorder uses automatic mode.
// It is true when no recorder has been installed.
func Automatic() bool {
	return global.Load().automatic
}

// Installed reports whether a recorder has been installed.
func Installed() bool {
	return global.Load().installed
}
