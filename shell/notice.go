package shell

import (
	"time"

	"skylark/models"
)

// NoticeKind names what a Notice reports.
type NoticeKind string

const (
	NoticeForcedLogout NoticeKind = "forced_logout"
	NoticeSession      NoticeKind = "session"
	NoticeAlert        NoticeKind = "alert"
	NoticeMessage      NoticeKind = "message"
)

// Notice is one user-visible event for a client. IDs increase per shell.
type Notice struct {
	ID          uint64          `json:"id"`
	Kind        NoticeKind      `json:"kind"`
	Text        string          `json:"text,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Alert       *models.Alert   `json:"alert,omitempty"`
	ChatMessage *models.Message `json:"message,omitempty"`
	Account     *models.Account `json:"account,omitempty"`
	At          time.Time       `json:"at"`
}

const maxNotices = 50
