package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MessageStatusPending = "pending"
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
)

type Message struct {
	Id            string         `json:"id" gorm:"primaryKey"`
	RoomId        string         `json:"roomId" gorm:"index"`
	SenderId      string         `json:"senderId"`
	Sender        *UserSummary   `json:"sender,omitempty" gorm:"-"` // populated on read, never stored
	Body          string         `json:"body"`
	TempId        string         `json:"tempId" gorm:"uniqueIndex"`
	Status        string         `json:"status"`
	Edited        bool           `json:"edited"`
	SeenBy        StringList     `json:"seenBy"`
	ReadTime      *time.Time     `json:"readTime"`
	HideFor       StringList     `json:"hideFor"`
	Replies       StringList     `json:"replies"`
	ReplyTargetId string         `json:"replyTargetId"`
	ReplyTo       datatypes.JSON `json:"replyTo"` // client-supplied snapshot of the replied message
	PinnedAt      *time.Time     `json:"pinnedAt"`
	Voice         *VoicePayload  `json:"voice" gorm:"serializer:json"`
	File          *FilePayload   `json:"file" gorm:"serializer:json"`
	Seq           int64          `json:"seq" gorm:"index"` // creation order within the store
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

type VoicePayload struct {
	Src      string           `json:"src" mapstructure:"src"`
	Duration float64          `json:"duration" mapstructure:"duration"`
	PlayedBy []PlaybackRecord `json:"playedBy" mapstructure:"-"`
}

type FilePayload struct {
	Name string `json:"name" mapstructure:"name"`
	Size int64  `json:"size" mapstructure:"size"`
	Type string `json:"type" mapstructure:"type"`
	Url  string `json:"url" mapstructure:"url"`
}

// MessageIdFor derives the durable message id from the correlation token. Two creates with the same token always
// produce the same id.
func MessageIdFor(tempId string) (string, error) {
	h, err := hashstructure.Hash(struct{ TempId string }{TempId: tempId}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h), nil
}

// VisibleFor reports whether the message is not hidden for userId.
func (m *Message) VisibleFor(userId string) bool {
	return userId == "" || !m.HideFor.Contains(userId)
}

// HasPayload is true if there is a body, a voice or a file payload.
func (m *Message) HasPayload() bool {
	return m.Body != "" || m.Voice != nil || m.File != nil
}

// TogglePin sets the pin timestamp if absent and clears it otherwise.
func (m *Message) TogglePin(now time.Time) {
	if m.PinnedAt != nil {
		m.PinnedAt = nil
		return
	}
	t := now
	m.PinnedAt = &t
}
