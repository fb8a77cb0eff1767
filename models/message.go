package models

import (
	"sort"
	"time"
)

// Message is an append-only chat entry. CreatedAt is assigned by the server.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	GroupID    string    `bson:"groupId" json:"groupId"`
	SenderID   string    `bson:"senderId" json:"senderId"`
	SenderName string    `bson:"senderName" json:"senderName"`
	Text       string    `bson:"text" json:"text"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

// SortByTime orders messages by server timestamp, oldest first. Ties keep
// their relative order.
func SortByTime(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
