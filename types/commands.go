package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// inbound command names
const (
	CommandAnnounce             = "announce"
	CommandSubscribeRoom        = "subscribeRoom"
	CommandCreateMessage        = "createMessage"
	CommandEditMessage          = "editMessage"
	CommandDeleteMessage        = "deleteMessage"
	CommandMarkSeen             = "markSeen"
	CommandPinMessage           = "pinMessage"
	CommandTyping               = "typing"
	CommandStopTyping           = "stopTyping"
	CommandPlayVoice            = "playVoice"
	CommandCreateRoom           = "createRoom"
	CommandJoinRoom             = "joinRoom"
	CommandUpdateRoom           = "updateRoom"
	CommandDeleteRoom           = "deleteRoom"
	CommandUpdateUser           = "updateUser"
	CommandGetUser              = "getUser"
	CommandUpdateScrollPosition = "updateScrollPosition"
	CommandListRooms            = "listRooms"
	CommandOpenRoom             = "openRoom"
	CommandGetRoomMembers       = "getRoomMembers"
	CommandGetVoiceListeners    = "getVoiceListeners"
)

const (
	DeleteScopeEveryone = "everyone"
	DeleteScopeMe       = "me"
)

// ErrInvalidCommand is wrapped by every decoding and validation error.
var ErrInvalidCommand = errors.New("invalid command")

// Command is the closed set of inbound commands. Every command validates its required fields before it reaches the
// handlers.
type Command interface {
	GetCommandName() string
	Validate() error
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidCommand, field)
}

var commandFactories = map[string]func() Command{
	CommandAnnounce:             func() Command { return &Announce{} },
	CommandSubscribeRoom:        func() Command { return &SubscribeRoom{} },
	CommandCreateMessage:        func() Command { return &CreateMessage{} },
	CommandEditMessage:          func() Command { return &EditMessage{} },
	CommandDeleteMessage:        func() Command { return &DeleteMessage{} },
	CommandMarkSeen:             func() Command { return &MarkSeen{} },
	CommandPinMessage:           func() Command { return &PinMessage{} },
	CommandTyping:               func() Command { return &Typing{} },
	CommandStopTyping:           func() Command { return &StopTyping{} },
	CommandPlayVoice:            func() Command { return &PlayVoice{} },
	CommandCreateRoom:           func() Command { return &CreateRoom{} },
	CommandJoinRoom:             func() Command { return &JoinRoom{} },
	CommandUpdateRoom:           func() Command { return &UpdateRoom{} },
	CommandDeleteRoom:           func() Command { return &DeleteRoom{} },
	CommandUpdateUser:           func() Command { return &UpdateUser{} },
	CommandGetUser:              func() Command { return &GetUser{} },
	CommandUpdateScrollPosition: func() Command { return &UpdateScrollPosition{} },
	CommandListRooms:            func() Command { return &ListRooms{} },
	CommandOpenRoom:             func() Command { return &OpenRoom{} },
	CommandGetRoomMembers:       func() Command { return &GetRoomMembers{} },
	CommandGetVoiceListeners:    func() Command { return &GetVoiceListeners{} },
}

// DecodeCommand turns an inbound websocket message into a validated Command.
func DecodeCommand(msg *WebsocketMessage) (Command, error) {
	factory, ok := commandFactories[msg.Event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, msg.Event)
	}
	raw := make(map[string]interface{})
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		err := json.Unmarshal(msg.Data, &raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, err)
		}
	}
	cmd := factory()
	err := mapstructure.WeakDecode(raw, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, err)
	}
	err = cmd.Validate()
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

type Announce struct {
	UserId string `mapstructure:"userId"`
}

func (c *Announce) GetCommandName() string { return CommandAnnounce }

func (c *Announce) Validate() error {
	if c.UserId == "" {
		return missing("userId")
	}
	return nil
}

type SubscribeRoom struct {
	RoomId string `mapstructure:"roomId"`
}

func (c *SubscribeRoom) GetCommandName() string { return CommandSubscribeRoom }

func (c *SubscribeRoom) Validate() error {
	if c.RoomId == "" {
		return missing("roomId")
	}
	return nil
}

// ReplyTarget names the message being replied to, Snapshot is echoed to the room as-is.
type ReplyTarget struct {
	TargetId string                 `mapstructure:"targetId"`
	Snapshot map[string]interface{} `mapstructure:"snapshot"`
}

type CreateMessage struct {
	RoomId  string        `mapstructure:"roomId"`
	TempId  string        `mapstructure:"tempId"`
	Body    string        `mapstructure:"body"`
	Voice   *VoicePayload `mapstructure:"voice"`
	File    *FilePayload  `mapstructure:"file"`
	ReplyTo *ReplyTarget  `mapstructure:"replyTo"`
}

func (c *CreateMessage) GetCommandName() string { return CommandCreateMessage }

func (c *CreateMessage) Validate() error {
	if c.RoomId == "" {
		return missing("roomId")
	}
	return c.validatePayload()
}

func (c *CreateMessage) validatePayload() error {
	if c.TempId == "" {
		return missing("tempId")
	}
	if c.Body == "" && c.Voice == nil && c.File == nil {
		return missing("body, voice or file")
	}
	if c.ReplyTo != nil && c.ReplyTo.TargetId == "" {
		return missing("replyTo.targetId")
	}
	return nil
}

type EditMessage struct {
	Id   string `mapstructure:"id"`
	Body string `mapstructure:"body"`
}

func (c *EditMessage) GetCommandName() string { return CommandEditMessage }

func (c *EditMessage) Validate() error {
	if c.Id == "" {
		return missing("id")
	}
	if c.Body == "" {
		return missing("body")
	}
	return nil
}

type DeleteMessage struct {
	Id    string `mapstructure:"id"`
	Scope string `mapstructure:"scope"`
}

func (c *DeleteMessage) GetCommandName() string { return CommandDeleteMessage }

func (c *DeleteMessage) Validate() error {
	if c.Id == "" {
		return missing("id")
	}
	if c.Scope != DeleteScopeEveryone && c.Scope != DeleteScopeMe {
		return fmt.Errorf("%w: scope must be %q or %q", ErrInvalidCommand, DeleteScopeEveryone, DeleteScopeMe)
	}
	return nil
}

type MarkSeen struct {
	Id        string `mapstructure:"id"`
	ReaderId  string `mapstructure:"readerId"`
	Timestamp string `mapstructure:"timestamp"` // RFC3339 or unix milliseconds
}

func (c *MarkSeen) GetCommandName() string { return CommandMarkSeen }

func (c *MarkSeen) Validate() error {
	if c.Id == "" {
		return missing("id")
	}
	if c.ReaderId == "" {
		return missing("readerId")
	}
	if c.Timestamp != "" {
		if _, err := parseTimestamp(c.Timestamp); err != nil {
			return fmt.Errorf("%w: timestamp: %s", ErrInvalidCommand, err)
		}
	}
	return nil
}

// ReadTime returns the client supplied read time or now if there was none.
func (c *MarkSeen) ReadTime(now time.Time) time.Time {
	if c.Timestamp == "" {
		return now
	}
	t, err := parseTimestamp(c.Timestamp)
	if err != nil {
		return now
	}
	return t
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

type PinMessage struct {
	Id            string `mapstructure:"id"`
	IsLastMessage bool   `mapstructure:"isLastMessage"`
}

func (c *PinMessage) GetCommandName() string { return CommandPinMessage }

func (c *PinMessage) Validate() error {
	if c.Id == "" {
		return missing("id")
	}
	return nil
}

type Typing struct {
	DisplayName string `mapstructure:"displayName"`
	RoomId      string `mapstructure:"roomId"`
}

func (c *Typing) GetCommandName() string { return CommandTyping }

func (c *Typing) Validate() error {
	return validateTyping(c.DisplayName, c.RoomId)
}

type StopTyping struct {
	DisplayName string `mapstructure:"displayName"`
	RoomId      string `mapstructure:"roomId"`
}

func (c *StopTyping) GetCommandName() string { return CommandStopTyping }

func (c *StopTyping) Validate() error {
	return validateTyping(c.DisplayName, c.RoomId)
}

func validateTyping(displayName, roomId string) error {
	if displayName == "" {
		return missing("displayName")
	}
	if roomId == "" {
		return missing("roomId")
	}
	return nil
}

type PlayVoice struct {
	Id         string `mapstructure:"id"`
	ListenerId string `mapstructure:"listenerId"`
}

func (c *PlayVoice) GetCommandName() string { return CommandPlayVoice }

func (c *PlayVoice) Validate() error {
	if c.Id == "" {
		return missing("id")
	}
	if c.ListenerId == "" {
		return missing("listenerId")
	}
	return nil
}

// RoomSpec describes a room to create. Id is only used (and required) for group and channel rooms.
type RoomSpec struct {
	Id           string   `mapstructure:"id"`
	Name         string   `mapstructure:"name"`
	Type         string   `mapstructure:"type"`
	Avatar       string   `mapstructure:"avatar"`
	Description  string   `mapstructure:"description"`
	Biography    string   `mapstructure:"biography"`
	Link         string   `mapstructure:"link"`
	Participants []string `mapstructure:"participants"`
	Admins       []string `mapstructure:"admins"`
}

// InitialMessage is the optional first message of a new room, the room id is filled in on creation.
type InitialMessage struct {
	TempId string        `mapstructure:"tempId"`
	Body   string        `mapstructure:"body"`
	Voice  *VoicePayload `mapstructure:"voice"`
	File   *FilePayload  `mapstructure:"file"`
}

type CreateRoom struct {
	Room    RoomSpec        `mapstructure:"room"`
	Message *InitialMessage `mapstructure:"message"`
}

func (c *CreateRoom) GetCommandName() string { return CommandCreateRoom }

func (c *CreateRoom) Validate() error {
	if c.Room.Name == "" {
		return missing("room.name")
	}
	if !ValidRoomType(c.Room.Type) {
		return fmt.Errorf("%w: room.type must be one of private, group, channel", ErrInvalidCommand)
	}
	if c.Room.Type != RoomTypePrivate && c.Room.Id == "" {
		return missing("room.id")
	}
	if c.Message != nil {
		return c.Message.AsCreateMessage("-").validatePayload()
	}
	return nil
}

// AsCreateMessage builds the regular creation command for roomId.
func (m *InitialMessage) AsCreateMessage(roomId string) *CreateMessage {
	return &CreateMessage{
		RoomId: roomId,
		TempId: m.TempId,
		Body:   m.Body,
		Voice:  m.Voice,
		File:   m.File,
	}
}

type JoinRoom struct {
	RoomId string `mapstructure:"roomId"`
	UserId string `mapstructure:"userId"`
}

func (c *JoinRoom) GetCommandName() string { return CommandJoinRoom }

func (c *JoinRoom) Validate() error {
	if c.RoomId == "" {
		return missing("roomId")
	}
	if c.UserId == "" {
		return missing("userId")
	}
	return nil
}

type UpdateRoom struct {
	RoomId string     `mapstructure:"roomId"`
	Fields RoomUpdate `mapstructure:"fields"`
}

func (c *UpdateRoom) GetCommandName() string { return CommandUpdateRoom }

func (c *UpdateRoom) Validate() error {
	if c.RoomId == "" {
		return missing("roomId")
	}
	if c.Fields.Empty() {
		return missing("fields")
	}
	return nil
}

type DeleteRoom struct {
	RoomId string `mapstructure:"roomId"`
}

func (c *DeleteRoom) GetCommandName() string { return CommandDeleteRoom }

func (c *DeleteRoom) Validate() error {
	if c.RoomId == "" {
		return missing("roomId")
	}
	return nil
}

type UpdateUser struct {
	UserId     string `mapstructure:"userId"`
	UserUpdate `mapstructure:",squash"`
}

func (c *UpdateUser) GetCommandName() string { return CommandUpdateUser }

func (c *UpdateUser) Validate() error {
	if c.UserId == "" {
		return missing("userId")
	}
	if c.UserUpdate.Empty() {
		return missing("at least one field")
	}
	return nil
}

type GetUser struct {
	UserId string `mapstructure:"userId"`
}

func (c *GetUser) GetCommandName() string { return CommandGetUser }

func (c *GetUser) Validate() error {
	if c.UserId == "" {
		return missing("userId")
	}
	return nil
}

type UpdateScrollPosition struct {
	RoomId    string  `mapstructure:"roomId"`
	UserId    string  `mapstructure:"userId"`
	ScrollPos float64 `mapstructure:"scrollPos"`
	Echo      *bool   `mapstructure:"echo"`
}

func (c *UpdateScrollPosition) GetCommandName() string { return CommandUpdateScrollPosition }

func (c *UpdateScrollPosition) Validate() error {
	if c.RoomId == "" {
		return missing("roomId")
	}
	if c.UserId == "" {
		return missing("userId")
	}
	return nil
}

// ShouldEcho defaults to true.
func (c *UpdateScrollPosition) ShouldEcho() bool {
	return c.Echo == nil || *c.Echo
}

type ListRooms struct {
	UserId string `mapstructure:"userId"`
}

func (c *ListRooms) GetCommandName() string { return CommandListRooms }

func (c *ListRooms) Validate() error {
	if c.UserId == "" {
		return missing("userId")
	}
	return nil
}

type OpenRoom struct {
	Query string `mapstructure:"query"`
}

func (c *OpenRoom) GetCommandName() string { return CommandOpenRoom }

func (c *OpenRoom) Validate() error {
	if c.Query == "" {
		return missing("query")
	}
	return nil
}

type GetRoomMembers struct {
	RoomId string `mapstructure:"roomId"`
}

func (c *GetRoomMembers) GetCommandName() string { return CommandGetRoomMembers }

func (c *GetRoomMembers) Validate() error {
	if c.RoomId == "" {
		return missing("roomId")
	}
	return nil
}

type GetVoiceListeners struct {
	Id string `mapstructure:"id"`
}

func (c *GetVoiceListeners) GetCommandName() string { return CommandGetVoiceListeners }

func (c *GetVoiceListeners) Validate() error {
	if c.Id == "" {
		return missing("id")
	}
	return nil
}
