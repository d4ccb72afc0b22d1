// Package identity resolves the caller subject established by an upstream
// authentication layer. The gateway never verifies credentials itself.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Anonymous is the subject used when no identity can be resolved.
const Anonymous = "anonymous"

// ErrNoSubject means the request carried no resolvable subject.
var ErrNoSubject = errors.New("no authenticated subject")

// ErrForbidden means the subject is known but may not use the gateway.
// Resolvers return it to reject a caller regardless of identity.required.
var ErrForbidden = errors.New("subject not permitted")

// Resolver extracts the caller subject from a request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (string, error)

// Resolve calls f(r).
func (f ResolverFunc) Resolve(r *http.Request) (string, error) { return f(r) }

// HeaderResolver reads the subject from a header set by a trusted proxy.
type HeaderResolver struct {
	Header string
}

// Resolve returns the trimmed header value or ErrNoSubject.
func (h HeaderResolver) Resolve(r *http.Request) (string, error) {
	if h.Header == "" {
		return "", ErrNoSubject
	}
	subject := strings.TrimSpace(r.Header.Get(h.Header))
	if subject == "" {
		return "", ErrNoSubject
	}
	return subject, nil
}

type ctxKey struct{}

// WithSubject stores the resolved subject on the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKey{}, subject)
}

// FromContext returns the subject stored by WithSubject, or Anonymous.
func FromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKey{}).(string); ok && s != "" {
		return s
	}
	return Anonymous
}
