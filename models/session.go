package models

// SessionSnapshot is the client-held copy of the logged-in account.
type SessionSnapshot struct {
	Account Account `json:"account"`
	Token   string  `json:"token"`
}

// ImpersonationBackup holds an administrator's own session while they drive
// another account. Its presence disables forced logout.
type ImpersonationBackup struct {
	User  Account `json:"user"`
	Token string  `json:"token"`
}
