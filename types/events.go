package types

import "time"

// outbound event names
const (
	EventAck                = "ack"
	EventError              = "error"
	EventNewMessage         = "newMessage"
	EventMessageIdUpdate    = "messageIdUpdate"
	EventLastMessageUpdate  = "lastMessageUpdate"
	EventMessageEdited      = "messageEdited"
	EventMessageDeleted     = "messageDeleted"
	EventMessageSeen        = "messageSeen"
	EventMessagePinned      = "messagePinned"
	EventTyping             = "typing"
	EventStopTyping         = "stopTyping"
	EventVoicePlayed        = "voicePlayed"
	EventRoomCreated        = "roomCreated"
	EventRoomJoined         = "roomJoined"
	EventRoomUpdated        = "roomUpdated"
	EventRoomDeleted        = "roomDeleted"
	EventOnlineUsers        = "onlineUsers"
	EventUserUpdated        = "userUpdated"
	EventParticipantUpdated = "participantUpdated"
)

type ErrorData struct {
	Error string `json:"error"`
}

type MessageIdUpdateData struct {
	TempId string `json:"tempId"`
	Id     string `json:"id"`
}

// LastMessageUpdateData carries the room's current last message, Message is nil if there is none.
type LastMessageUpdateData struct {
	RoomId  string   `json:"roomId"`
	Message *Message `json:"message"`
}

type MessageEditedData struct {
	Id     string `json:"id"`
	RoomId string `json:"roomId"`
	Body   string `json:"body"`
}

type MessageDeletedData struct {
	Id     string `json:"id"`
	RoomId string `json:"roomId"`
	Scope  string `json:"scope"`
}

type MessageSeenData struct {
	Id       string    `json:"id"`
	RoomId   string    `json:"roomId"`
	ReaderId string    `json:"readerId"`
	ReadTime time.Time `json:"readTime"`
}

type MessagePinnedData struct {
	Id       string     `json:"id"`
	RoomId   string     `json:"roomId"`
	PinnedAt *time.Time `json:"pinnedAt"`
}

type TypingData struct {
	RoomId      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	UserId      string `json:"userId,omitempty"`
}

type VoicePlayedData struct {
	Id         string `json:"id"`
	RoomId     string `json:"roomId"`
	ListenerId string `json:"listenerId"`
}

type RoomJoinedData struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
}

type RoomDeletedData struct {
	RoomId string `json:"roomId"`
}

type OnlineUsersData struct {
	Users []string `json:"users"`
}

type ParticipantUpdatedData struct {
	UserId   string `json:"userId"`
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Avatar   string `json:"avatar"`
}

// VoiceListener is one entry of the voice listeners query, PlayedAt is nil for legacy records without a timestamp.
type VoiceListener struct {
	User     *User      `json:"user"`
	PlayedAt *time.Time `json:"playedAt"`
}

// Presence is the HTTP presence view of a user.
type Presence struct {
	UserId   string `json:"userId"`
	Online   bool   `json:"online"`
	Sessions int    `json:"sessions"`
}
