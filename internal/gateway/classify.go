package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Category is the coarse cause of an I/O failure.
type Category int

const (
	CategoryOther Category = iota
	CategoryTimeout
	CategoryConnectionReset
	CategoryConnectionClosedByPeer
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTimeout:
		return "timeout"
	case CategoryConnectionReset:
		return "connection_reset"
	case CategoryConnectionClosedByPeer:
		return "connection_closed_by_peer"
	default:
		return "other"
	}
}

// ErrorKind is the error_type recorded for a failure of this category.
func (c Category) ErrorKind() string {
	switch c {
	case CategoryTimeout:
		return "timeout_error"
	case CategoryConnectionReset:
		return "connection_reset"
	case CategoryConnectionClosedByPeer:
		return "connection_closed"
	default:
		return "gateway_error"
	}
}

// IsDisconnect reports whether the category means the peer went away.
func (c Category) IsDisconnect() bool {
	return c == CategoryConnectionReset || c == CategoryConnectionClosedByPeer
}

// Disconnect markers, matched case-insensitively against the message and
// dynamic type name of every error in the chain.
var (
	resetMarkers  = []string{"connection reset"}
	closedMarkers = []string{"broken pipe", "client disconnected", "client abort", "clientabort", "request not usable"}
)

// Classify walks err and everything it wraps. A disconnect found anywhere in
// the chain wins; otherwise a timeout anywhere wins; otherwise Other.
func Classify(err error) Category {
	if err == nil {
		return CategoryOther
	}
	timeout := false
	found := CategoryOther
	walkChain(err, func(e error) bool {
		if c := disconnectCategory(e); c != CategoryOther {
			found = c
			return false
		}
		if isTimeout(e) {
			timeout = true
		}
		return true
	})
	if found != CategoryOther {
		return found
	}
	if timeout {
		return CategoryTimeout
	}
	return CategoryOther
}

// IsClientDisconnect reports whether err means the downstream client is gone.
func IsClientDisconnect(err error) bool {
	return Classify(err).IsDisconnect()
}

func disconnectCategory(e error) Category {
	var errno syscall.Errno
	if errors.As(e, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return CategoryConnectionReset
		case syscall.EPIPE:
			return CategoryConnectionClosedByPeer
		}
	}
	if e == context.Canceled {
		return CategoryConnectionClosedByPeer
	}
	text := strings.ToLower(e.Error() + " " + fmt.Sprintf("%T", e))
	for _, m := range resetMarkers {
		if strings.Contains(text, m) {
			return CategoryConnectionReset
		}
	}
	for _, m := range closedMarkers {
		if strings.Contains(text, m) {
			return CategoryConnectionClosedByPeer
		}
	}
	return CategoryOther
}

func isTimeout(e error) bool {
	if e == context.DeadlineExceeded || e == os.ErrDeadlineExceeded {
		return true
	}
	var ne net.Error
	return errors.As(e, &ne) && ne.Timeout()
}

// walkChain visits err and every error it wraps, depth first, including
// both forms of Unwrap. visit returns false to stop.
func walkChain(err error, visit func(error) bool) bool {
	if err == nil {
		return true
	}
	if !visit(err) {
		return false
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return walkChain(u.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if !walkChain(e, visit) {
				return false
			}
		}
	}
	return true
}
