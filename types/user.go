package types

import "time"

const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
)

type User struct {
	Id               string           `json:"id" gorm:"primaryKey"`
	Name             string           `json:"name"`
	LastName         string           `json:"lastName"`
	Username         string           `json:"username" gorm:"index"`
	Phone            string           `json:"phone"`
	Avatar           string           `json:"avatar"`
	Biography        string           `json:"biography"`
	Status           string           `json:"status"` // online/offline, written on presence transitions
	RoomMessageTrack []ScrollPosition `json:"roomMessageTrack" gorm:"serializer:json"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ScrollPosition is the last scroll offset a user had in a room.
type ScrollPosition struct {
	RoomId    string  `json:"roomId" mapstructure:"roomId"`
	ScrollPos float64 `json:"scrollPos" mapstructure:"scrollPos"`
}

// UserSummary holds the display fields of a message sender.
type UserSummary struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	LastName string `json:"lastName"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{
		Id:       u.Id,
		Name:     u.Name,
		LastName: u.LastName,
		Username: u.Username,
		Avatar:   u.Avatar,
	}
}

// SetScrollPosition updates the scroll position for roomId, appending a new entry if the room is not tracked yet.
func (u *User) SetScrollPosition(roomId string, pos float64) {
	for i := range u.RoomMessageTrack {
		if u.RoomMessageTrack[i].RoomId == roomId {
			u.RoomMessageTrack[i].ScrollPos = pos
			return
		}
	}
	u.RoomMessageTrack = append(u.RoomMessageTrack, ScrollPosition{RoomId: roomId, ScrollPos: pos})
}

// UserUpdate is a partial user update, nil fields are left untouched.
type UserUpdate struct {
	Name      *string `json:"name,omitempty" mapstructure:"name"`
	LastName  *string `json:"lastName,omitempty" mapstructure:"lastName"`
	Username  *string `json:"username,omitempty" mapstructure:"username"`
	Phone     *string `json:"phone,omitempty" mapstructure:"phone"`
	Avatar    *string `json:"avatar,omitempty" mapstructure:"avatar"`
	Biography *string `json:"biography,omitempty" mapstructure:"biography"`
}

func (u *UserUpdate) Empty() bool {
	return u.Name == nil && u.LastName == nil && u.Username == nil && u.Phone == nil && u.Avatar == nil && u.Biography == nil
}

// TouchesDisplay reports whether the update changes fields shown next to the user in private rooms.
func (u *UserUpdate) TouchesDisplay() bool {
	return u.Avatar != nil || u.Name != nil || u.LastName != nil
}

func (u *UserUpdate) Apply(user *User) {
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.LastName != nil {
		user.LastName = *u.LastName
	}
	if u.Username != nil {
		user.Username = *u.Username
	}
	if u.Phone != nil {
		user.Phone = *u.Phone
	}
	if u.Avatar != nil {
		user.Avatar = *u.Avatar
	}
	if u.Biography != nil {
		user.Biography = *u.Biography
	}
}
