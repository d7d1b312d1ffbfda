package zulip

import "context"

// Session answers who triggered the event being dispatched.
type Session interface {
	IsLogged() bool
	Fullname() string
}

// Actor is the user behind an event, as reported by the task application.
type Actor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (a Actor) IsLogged() bool { return a.ID != 0 || a.Username != "" }

// Fullname prefers the display name and falls back to the username.
func (a Actor) Fullname() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Username
}

type actorKey struct{}

// WithActor returns a context carrying s.
func WithActor(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, actorKey{}, s)
}

// SessionFrom returns the session on ctx, or an anonymous one.
func SessionFrom(ctx context.Context) Session {
	if s, ok := ctx.Value(actorKey{}).(Session); ok && s != nil {
		return s
	}
	return Actor{}
}
