// internal/models/pickup.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PickupStatus is the moderation state of a pickup.
type PickupStatus string

const (
	StatusPending  PickupStatus = "pending"
	StatusApproved PickupStatus = "approved"
	StatusRejected PickupStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s PickupStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether a pickup in status s may move to next.
// Only pending pickups can be reviewed, and only into approved or rejected.
func (s PickupStatus) CanTransitionTo(next PickupStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// LocationSource records how the submitter picked the coordinates.
type LocationSource string

const (
	LocationGPS    LocationSource = "gps"
	LocationManual LocationSource = "manual"
)

func (s LocationSource) Valid() bool {
	return s == LocationGPS || s == LocationManual
}

// Pickup is a user-submitted photo report.
type Pickup struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	Latitude       float64            `bson:"latitude" json:"latitude"`
	Longitude      float64            `bson:"longitude" json:"longitude"`
	Description    string             `bson:"description" json:"description"`
	PhotoURL       string             `bson:"photo_url" json:"photo_url"`
	PhotoKey       string             `bson:"photo_key" json:"-"`
	Status         PickupStatus       `bson:"status" json:"status"`
	LocationSource LocationSource     `bson:"location_source,omitempty" json:"location_source,omitempty"`
	LocationLabel  string             `bson:"location_label,omitempty" json:"location_label,omitempty"`
	Geohash        string             `bson:"geohash,omitempty" json:"-"`
	ReviewedAt     *time.Time         `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	ReviewedBy     string             `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
}

// PickupEvent is pushed to live map viewers.
type PickupEvent struct {
	Event  string `json:"event"`
	Pickup Pickup `json:"pickup"`
}

const EventPickupApproved = "pickup_approved"
