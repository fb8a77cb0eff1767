package models

import "time"

type Group struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Code      string    `bson:"code" json:"code"`
	CreatedBy string    `bson:"createdBy" json:"createdBy"`
	Members   []string  `bson:"members" json:"members"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// HasMember reports whether accountID is in the member list.
func (g Group) HasMember(accountID string) bool {
	for _, m := range g.Members {
		if m == accountID {
			return true
		}
	}
	return false
}
