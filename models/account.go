package models

import "time"

// Account is a registered user's credential and session record.
type Account struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	IsAdmin      bool      `bson:"isAdmin" json:"isAdmin"`
	ActiveToken  string    `bson:"activeToken" json:"activeToken"`
	Devices      []Device  `bson:"devices" json:"devices"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Device is one login event. Its ID is the token issued at that login.
type Device struct {
	ID        string    `bson:"id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	LoginTime time.Time `bson:"loginTime" json:"loginTime"`
}

// AccountEvent is one revision delivered by an account subscription.
// Deleted is set when the document no longer exists.
type AccountEvent struct {
	Account Account
	Deleted bool
	Err     error
}

// Clone returns a deep copy so callers never share the device slice.
func (a Account) Clone() Account {
	out := a
	if a.Devices != nil {
		out.Devices = append([]Device(nil), a.Devices...)
	}
	return out
}

// DeviceByID returns the device with the given id, if present.
func (a Account) DeviceByID(id string) (Device, bool) {
	for _, d := range a.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// PrependDevice puts d first and keeps at most limit entries.
func PrependDevice(devices []Device, d Device, limit int) []Device {
	out := make([]Device, 0, len(devices)+1)
	out = append(out, d)
	out = append(out, devices...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
