package model

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message kinds. Exactly one of the payload fields is populated per kind.
const (
	KindText  = "text"
	KindImage = "image"
	KindVoice = "voice"
	KindFile  = "file"
)

var ErrInvalidPayload = errors.New("message payload must populate exactly one kind")

// FileInfo describes a file attachment. The URL is opaque to the core; it is
// whatever the media store handed back before the message was persisted.
type FileInfo struct {
	URL      string `json:"url" bson:"url"`
	Name     string `json:"name" bson:"name"`
	MimeType string `json:"mimeType" bson:"mimeType"`
	Size     int64  `json:"size" bson:"size"`
}

// Message is a chat message document in MongoDB. Field names are kept
// camelCase in bson so records stay compatible with the existing collection.
type Message struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	SenderID   primitive.ObjectID `json:"senderId" bson:"senderId"`
	ReceiverID primitive.ObjectID `json:"receiverId" bson:"receiverId"`
	Kind       string             `json:"kind" bson:"kind"`
	Text       string             `json:"text" bson:"text"`
	Image      string             `json:"image" bson:"image"`
	Voice      string             `json:"voice" bson:"voice"`
	File       *FileInfo          `json:"file,omitempty" bson:"file,omitempty"`
	Seen       bool               `json:"seen" bson:"seen"`
	Delivered  bool               `json:"delivered" bson:"delivered"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}

// MessagePayload is the caller-supplied content of an outgoing message,
// before sender/receiver and timestamps are attached.
type MessagePayload struct {
	Text  string    `json:"text"`
	Image string    `json:"image"`
	Voice string    `json:"voice"`
	File  *FileInfo `json:"file"`
}

// Kind reports which message kind the payload represents, or "" when the
// payload is empty or ambiguous.
func (p MessagePayload) Kind() string {
	kind := ""
	set := 0
	if p.Text != "" {
		kind = KindText
		set++
	}
	if p.Image != "" {
		kind = KindImage
		set++
	}
	if p.Voice != "" {
		kind = KindVoice
		set++
	}
	if p.File != nil && p.File.URL != "" {
		kind = KindFile
		set++
	}
	if set != 1 {
		return ""
	}
	return kind
}

// Validate enforces the exactly-one-kind invariant.
func (p MessagePayload) Validate() error {
	if p.Kind() == "" {
		return ErrInvalidPayload
	}
	return nil
}

// ErrorPayload represents an error response sent to a client via WebSocket.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
