package session

import "skylark/models"

// EventKind identifies a Manager event.
type EventKind string

const (
	EventLoggedIn       EventKind = "logged_in"
	EventLoggedOut      EventKind = "logged_out"
	EventForcedLogout   EventKind = "forced_logout"
	EventReload         EventKind = "reload"
	EventAccountUpdated EventKind = "account_updated"
)

// Event is emitted after the state change it describes is complete.
type Event struct {
	Kind    EventKind
	Account *models.Account
	Reason  Reason
}

// View is a read-only copy of the session state.
type View struct {
	Account       *models.Account `json:"account"`
	Token         string          `json:"-"`
	Impersonating bool            `json:"impersonating"`
}

// Authenticated reports whether an account is loaded.
func (v View) Authenticated() bool {
	return v.Account != nil
}
