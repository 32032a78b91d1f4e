package persistence

import (
	"errors"

	"github.com/tcriess/lightspeed-messenger/types"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateTempId = errors.New("duplicate temp id")
)

// Persister is the persistence gateway. All Update* methods run the mutation inside one store transaction on a
// fresh copy of the entity: the mutation is applied atomically or not at all (an error returned by fn aborts it).
type Persister interface {
	StoreUser(*types.User) error
	GetUser(id string) (*types.User, error)
	GetUsers() ([]*types.User, error)
	GetUsersByIds(ids []string) ([]*types.User, error)
	UpdateUser(id string, fn func(*types.User) error) (*types.User, error)
	DeleteUser(id string) error

	// CreateMessage fails with ErrDuplicateTempId if a message with the same TempId (or Id) was ever created,
	// deleted messages included. It assigns Seq.
	CreateMessage(*types.Message) error
	GetMessage(id string) (*types.Message, error)
	GetMessageByTempId(tempId string) (*types.Message, error)
	// GetRoomMessages returns the messages of a room, oldest first.
	GetRoomMessages(roomId string) ([]*types.Message, error)
	UpdateMessage(id string, fn func(*types.Message) error) (*types.Message, error)
	DeleteMessage(id string) error
	DeleteRoomMessages(roomId string) error
	// GetLatestVisibleMessage returns the newest message of the room not hidden for hiddenFor ("" = no filter),
	// or nil if there is none.
	GetLatestVisibleMessage(roomId, hiddenFor string) (*types.Message, error)
	// CountUnseen counts the room's messages not sent by userId and not seen by userId.
	CountUnseen(roomId, userId string) (int64, error)

	CreateRoom(*types.Room) error
	StoreRoom(*types.Room) error
	GetRoom(id string) (*types.Room, error)
	GetRoomByName(name string) (*types.Room, error)
	// FindRoom looks the room up by id first, then by name.
	FindRoom(nameOrId string) (*types.Room, error)
	GetRooms() ([]*types.Room, error)
	GetRoomsForParticipant(userId string) ([]*types.Room, error)
	UpdateRoom(id string, fn func(*types.Room) error) (*types.Room, error)
	AppendRoomMessage(roomId, messageId string) error
	RemoveRoomMessage(roomId, messageId string) error
	DeleteRoom(id string) error

	Close() error
}

func findRoom(p Persister, nameOrId string) (*types.Room, error) {
	room, err := p.GetRoom(nameOrId)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return p.GetRoomByName(nameOrId)
}

func appendRoomMessage(p Persister, roomId, messageId string) error {
	_, err := p.UpdateRoom(roomId, func(room *types.Room) error {
		room.Messages.AddUnique(messageId)
		return nil
	})
	return err
}

func removeRoomMessage(p Persister, roomId, messageId string) error {
	_, err := p.UpdateRoom(roomId, func(room *types.Room) error {
		room.Messages.Remove(messageId)
		return nil
	})
	return err
}
