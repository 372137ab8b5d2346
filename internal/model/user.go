package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a user document in MongoDB. The password hash is never
// serialized to JSON.
type User struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	FullName   string             `json:"fullName" bson:"fullName"`
	Email      string             `json:"email" bson:"email"`
	Password   string             `json:"-" bson:"password"`
	ProfilePic string             `json:"profilePic" bson:"profilePic"`
	Bio        string             `json:"bio" bson:"bio"`
	IsAdmin    bool               `json:"isAdmin" bson:"isAdmin"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}

// Peer is a sidebar entry: another user plus how many of their messages the
// requesting user has not seen yet.
type Peer struct {
	User        User  `json:"user"`
	UnseenCount int64 `json:"unseenCount"`
}
