package models

import (
	"strconv"
	"time"
)

// AlertKind distinguishes a single message alert from a collapsed summary.
type AlertKind string

const (
	AlertMessage AlertKind = "message"
	AlertSummary AlertKind = "summary"
)

// Alert is a user-visible notification about activity in a group that the
// user is not currently viewing.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	GroupID   string    `json:"groupId"`
	GroupName string    `json:"groupName"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text,omitempty"`
	Count     int       `json:"count,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Title and Body render the alert the way a platform notification shows it.
func (a Alert) Title() string {
	if a.Kind == AlertSummary {
		return a.GroupName
	}
	return a.Sender + " in " + a.GroupName
}

func (a Alert) Body() string {
	if a.Kind == AlertSummary {
		return strconv.Itoa(a.Count) + " new messages"
	}
	return a.Text
}

// PushPayload is the queued task body for push delivery.
type PushPayload struct {
	ClientID  string `json:"clientId"`
	PushToken string `json:"pushToken"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	GroupID   string `json:"groupId"`
	Kind      string `json:"kind"`
}
