package session

import "errors"

// AuthErrorKind distinguishes login and registration failures.
type AuthErrorKind int

const (
	NotFound AuthErrorKind = iota + 1
	BadCredentials
	AlreadyExists
)

// AuthError is returned by Login and Register. It is shown inline and
// never changes stored state.
type AuthError struct {
	Kind AuthErrorKind
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case NotFound:
		return "account not found"
	case BadCredentials:
		return "invalid username or password"
	case AlreadyExists:
		return "username already taken"
	}
	return "authentication failed"
}

// Is matches any AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound       = &AuthError{Kind: NotFound}
	ErrBadCredentials = &AuthError{Kind: BadCredentials}
	ErrAlreadyExists  = &AuthError{Kind: AlreadyExists}
)

var (
	ErrInvalidInput         = errors.New("username and password are required")
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrNotAdmin             = errors.New("administrator privileges required")
	ErrAlreadyImpersonating = errors.New("already impersonating another account")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrSessionChanged       = errors.New("active session changed during revocation")
	ErrClosed               = errors.New("session manager closed")
)

// Reason tells why a session was invalidated remotely.
type Reason string

const (
	// ReasonSuperseded means a newer login replaced the token.
	ReasonSuperseded Reason = "superseded"
	// ReasonRevoked means the token was cleared or the account removed.
	ReasonRevoked Reason = "revoked"
)

// Message is the user-visible text for the reason.
func (r Reason) Message() string {
	if r == ReasonSuperseded {
		return "You were logged out because your account was signed in on another device."
	}
	return "Your session on this device was revoked. Please log in again."
}

// ForcedLogoutError reports that a remote change invalidated the local session.
type ForcedLogoutError struct {
	Reason Reason
}

func (e *ForcedLogoutError) Error() string {
	return "forced logout: " + string(e.Reason)
}
