package types

import "time"

const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"
	RoomTypeChannel = "channel"
)

// Room is a conversation container. Messages holds the ids of the room's messages in creation order.
type Room struct {
	Id           string     `json:"id" gorm:"primaryKey"`
	Name         string     `json:"name" gorm:"index"`
	Type         string     `json:"type"`
	Avatar       string     `json:"avatar"`
	Description  string     `json:"description"`
	Biography    string     `json:"biography"`
	Link         string     `json:"link"`
	CreatorId    string     `json:"creatorId"`
	Participants StringList `json:"participants"`
	Admins       StringList `json:"admins"`
	Messages     StringList `json:"messages"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func ValidRoomType(t string) bool {
	switch t {
	case RoomTypePrivate, RoomTypeGroup, RoomTypeChannel:
		return true
	}
	return false
}

// RoomUpdate is a partial room update, nil fields are left untouched.
type RoomUpdate struct {
	Name        *string `json:"name,omitempty" mapstructure:"name"`
	Avatar      *string `json:"avatar,omitempty" mapstructure:"avatar"`
	Description *string `json:"description,omitempty" mapstructure:"description"`
	Biography   *string `json:"biography,omitempty" mapstructure:"biography"`
	Link        *string `json:"link,omitempty" mapstructure:"link"`
}

func (u *RoomUpdate) Empty() bool {
	return u.Name == nil && u.Avatar == nil && u.Description == nil && u.Biography == nil && u.Link == nil
}

func (u *RoomUpdate) Apply(room *Room) {
	if u.Name != nil {
		room.Name = *u.Name
	}
	if u.Avatar != nil {
		room.Avatar = *u.Avatar
	}
	if u.Description != nil {
		room.Description = *u.Description
	}
	if u.Biography != nil {
		room.Biography = *u.Biography
	}
	if u.Link != nil {
		room.Link = *u.Link
	}
}

// RoomView is a room as listed for one user: with that user's last visible message and unseen count.
type RoomView struct {
	*Room
	LastMessage *Message `json:"lastMessage"`
	UnseenCount int64    `json:"unseenCount"`
}

// RoomDetail is an opened room: its messages oldest first and, for private rooms, the participant profiles.
type RoomDetail struct {
	*Room
	History []*Message `json:"history"`
	Members []*User    `json:"members,omitempty"`
}
