package identity

import "context"

// User is the authenticated caller, resolved once per request and passed
// explicitly into every core operation.
type User struct {
	ID    string
	Email string
	Name  string
}

// Resolver maps a bearer credential to the calling user.
type Resolver interface {
	Resolve(ctx context.Context, token string) (User, error)
}
