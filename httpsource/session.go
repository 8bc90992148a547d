package httpsource

import "context"

// SessionProvider supplies the credentials attached to outgoing requests.
// It is passed to the client explicitly; there is no package-level session.
type SessionProvider interface {
	Token(ctx context.Context) (string, error)
}

// SessionExpirer is implemented by providers that want to know when the
// source rejected their credentials (e.g. to send the user back to login).
type SessionExpirer interface {
	Expire(ctx context.Context)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// TokenFunc adapts a function to SessionProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
