package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/types"
	"github.com/tidwall/buntdb"
)

const (
	buntUserPrefix    = "user:"
	buntRoomPrefix    = "room:"
	buntMessagePrefix = "message:"
	buntTempIdPrefix  = "tempid:" // tempId -> message id, kept after the message is deleted
	buntSeqKey        = "meta:seq"

	buntRoomNameIndex    = "rooms_name"
	buntRoomMessageIndex = "messages_room"
)

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	return &BuntDBPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	fileName := cfg.PersistenceConfig.DSN
	if fileName == "" {
		fileName = ":memory:"
	}
	db, err := buntdb.Open(fileName)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex(buntRoomNameIndex, buntRoomPrefix+"*", buntdb.IndexJSON("name"))
	if err != nil {
		db.Close()
		return nil, err
	}
	err = db.CreateIndex(buntRoomMessageIndex, buntMessagePrefix+"*", buntdb.IndexJSON("roomId"), buntdb.IndexJSON("seq"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buntGet(tx *buntdb.Tx, key string, v interface{}) error {
	val, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(val), v)
}

func buntSet(tx *buntdb.Tx, key string, v interface{}) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _, err = tx.Set(key, string(val), nil)
	return err
}

func buntDelete(tx *buntdb.Tx, key string) error {
	_, err := tx.Delete(key)
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// roomMessages walks the messages of a room in seq order. The JSON index compares case-insensitively, so
// neighbouring rooms whose ids only differ in case are skipped.
func roomMessages(tx *buntdb.Tx, roomId string, descending bool, fn func(*types.Message) bool) error {
	var walkErr error
	iter := func(key, val string) bool {
		m := &types.Message{}
		if err := json.Unmarshal([]byte(val), m); err != nil {
			walkErr = fmt.Errorf("corrupt message %s: %w", key, err)
			return false
		}
		if !strings.EqualFold(m.RoomId, roomId) {
			return false
		}
		if m.RoomId != roomId {
			return true
		}
		return fn(m)
	}
	var err error
	if descending {
		pivot := fmt.Sprintf(`{"roomId":%s,"seq":%d}`, strconv.Quote(roomId), int64(math.MaxInt64))
		err = tx.DescendLessOrEqual(buntRoomMessageIndex, pivot, iter)
	} else {
		pivot := fmt.Sprintf(`{"roomId":%s}`, strconv.Quote(roomId))
		err = tx.AscendGreaterOrEqual(buntRoomMessageIndex, pivot, iter)
	}
	if err != nil {
		return err
	}
	return walkErr
}

func (p *BuntDBPersist) StoreUser(user *types.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	return p.db.Update(func(tx *buntdb.Tx) error {
		return buntSet(tx, buntUserPrefix+user.Id, user)
	})
}

func (p *BuntDBPersist) GetUser(id string) (*types.User, error) {
	user := &types.User{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return buntGet(tx, buntUserPrefix+id, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var walkErr error
		err := tx.AscendKeys(buntUserPrefix+"*", func(key, val string) bool {
			user := &types.User{}
			if walkErr = json.Unmarshal([]byte(val), user); walkErr != nil {
				return false
			}
			users = append(users, user)
			return true
		})
		if err != nil {
			return err
		}
		return walkErr
	})
	return users, err
}

// GetUsersByIds returns the users that exist, in the order of ids. Unknown ids are skipped.
func (p *BuntDBPersist) GetUsersByIds(ids []string) ([]*types.User, error) {
	users := make([]*types.User, 0, len(ids))
	err := p.db.View(func(tx *buntdb.Tx) error {
		for _, id := range ids {
			user := &types.User{}
			err := buntGet(tx, buntUserPrefix+id, user)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	return users, err
}

func (p *BuntDBPersist) UpdateUser(id string, fn func(*types.User) error) (*types.User, error) {
	user := &types.User{}
	err := p.db.Update(func(tx *buntdb.Tx) error {
		if err := buntGet(tx, buntUserPrefix+id, user); err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		user.UpdatedAt = time.Now()
		return buntSet(tx, buntUserPrefix+id, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *BuntDBPersist) DeleteUser(id string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		return buntDelete(tx, buntUserPrefix+id)
	})
}

func (p *BuntDBPersist) CreateMessage(message *types.Message) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if message.TempId != "" {
			if _, err := tx.Get(buntTempIdPrefix + message.TempId); err == nil {
				return ErrDuplicateTempId
			} else if !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		if _, err := tx.Get(buntMessagePrefix + message.Id); err == nil {
			return ErrDuplicateTempId
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		var seq int64
		if val, err := tx.Get(buntSeqKey); err == nil {
			seq, _ = strconv.ParseInt(val, 10, 64)
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		seq++
		if _, _, err := tx.Set(buntSeqKey, strconv.FormatInt(seq, 10), nil); err != nil {
			return err
		}
		message.Seq = seq
		now := time.Now()
		if message.CreatedAt.IsZero() {
			message.CreatedAt = now
		}
		message.UpdatedAt = now
		if err := buntSet(tx, buntMessagePrefix+message.Id, storedMessage(message)); err != nil {
			return err
		}
		if message.TempId != "" {
			if _, _, err := tx.Set(buntTempIdPrefix+message.TempId, message.Id, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// storedMessage strips the fields that are populated on read.
func storedMessage(message *types.Message) *types.Message {
	if message.Sender == nil {
		return message
	}
	m := *message
	m.Sender = nil
	return &m
}

func (p *BuntDBPersist) GetMessage(id string) (*types.Message, error) {
	message := &types.Message{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return buntGet(tx, buntMessagePrefix+id, message)
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (p *BuntDBPersist) GetMessageByTempId(tempId string) (*types.Message, error) {
	message := &types.Message{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		id, err := tx.Get(buntTempIdPrefix + tempId)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		return buntGet(tx, buntMessagePrefix+id, message)
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (p *BuntDBPersist) GetRoomMessages(roomId string) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return roomMessages(tx, roomId, false, func(m *types.Message) bool {
			messages = append(messages, m)
			return true
		})
	})
	return messages, err
}

func (p *BuntDBPersist) UpdateMessage(id string, fn func(*types.Message) error) (*types.Message, error) {
	message := &types.Message{}
	err := p.db.Update(func(tx *buntdb.Tx) error {
		if err := buntGet(tx, buntMessagePrefix+id, message); err != nil {
			return err
		}
		if err := fn(message); err != nil {
			return err
		}
		message.UpdatedAt = time.Now()
		return buntSet(tx, buntMessagePrefix+id, storedMessage(message))
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (p *BuntDBPersist) DeleteMessage(id string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		return buntDelete(tx, buntMessagePrefix+id)
	})
}

func (p *BuntDBPersist) DeleteRoomMessages(roomId string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		keys := make([]string, 0)
		err := roomMessages(tx, roomId, false, func(m *types.Message) bool {
			keys = append(keys, buntMessagePrefix+m.Id)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) GetLatestVisibleMessage(roomId, hiddenFor string) (*types.Message, error) {
	var latest *types.Message
	err := p.db.View(func(tx *buntdb.Tx) error {
		return roomMessages(tx, roomId, true, func(m *types.Message) bool {
			if m.VisibleFor(hiddenFor) {
				latest = m
				return false
			}
			return true
		})
	})
	return latest, err
}

func (p *BuntDBPersist) CountUnseen(roomId, userId string) (int64, error) {
	var count int64
	err := p.db.View(func(tx *buntdb.Tx) error {
		return roomMessages(tx, roomId, false, func(m *types.Message) bool {
			if m.SenderId != userId && !m.SeenBy.Contains(userId) {
				count++
			}
			return true
		})
	})
	return count, err
}

func (p *BuntDBPersist) CreateRoom(room *types.Room) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(buntRoomPrefix + room.Id); err == nil {
			return fmt.Errorf("room %s already exists", room.Id)
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		now := time.Now()
		if room.CreatedAt.IsZero() {
			room.CreatedAt = now
		}
		room.UpdatedAt = now
		return buntSet(tx, buntRoomPrefix+room.Id, room)
	})
}

func (p *BuntDBPersist) StoreRoom(room *types.Room) error {
	room.UpdatedAt = time.Now()
	return p.db.Update(func(tx *buntdb.Tx) error {
		return buntSet(tx, buntRoomPrefix+room.Id, room)
	})
}

func (p *BuntDBPersist) GetRoom(id string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.View(func(tx *buntdb.Tx) error {
		return buntGet(tx, buntRoomPrefix+id, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *BuntDBPersist) GetRoomByName(name string) (*types.Room, error) {
	var found *types.Room
	err := p.db.View(func(tx *buntdb.Tx) error {
		var walkErr error
		pivot := fmt.Sprintf(`{"name":%s}`, strconv.Quote(name))
		err := tx.AscendEqual(buntRoomNameIndex, pivot, func(key, val string) bool {
			room := &types.Room{}
			if walkErr = json.Unmarshal([]byte(val), room); walkErr != nil {
				return false
			}
			if room.Name == name {
				found = room
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		return walkErr
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (p *BuntDBPersist) FindRoom(nameOrId string) (*types.Room, error) {
	return findRoom(p, nameOrId)
}

func (p *BuntDBPersist) GetRooms() ([]*types.Room, error) {
	return p.filterRooms(func(*types.Room) bool { return true })
}

func (p *BuntDBPersist) GetRoomsForParticipant(userId string) ([]*types.Room, error) {
	return p.filterRooms(func(room *types.Room) bool { return room.Participants.Contains(userId) })
}

func (p *BuntDBPersist) filterRooms(keep func(*types.Room) bool) ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var walkErr error
		err := tx.AscendKeys(buntRoomPrefix+"*", func(key, val string) bool {
			room := &types.Room{}
			if walkErr = json.Unmarshal([]byte(val), room); walkErr != nil {
				return false
			}
			if keep(room) {
				rooms = append(rooms, room)
			}
			return true
		})
		if err != nil {
			return err
		}
		return walkErr
	})
	return rooms, err
}

func (p *BuntDBPersist) UpdateRoom(id string, fn func(*types.Room) error) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.Update(func(tx *buntdb.Tx) error {
		if err := buntGet(tx, buntRoomPrefix+id, room); err != nil {
			return err
		}
		if err := fn(room); err != nil {
			return err
		}
		room.UpdatedAt = time.Now()
		return buntSet(tx, buntRoomPrefix+id, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *BuntDBPersist) AppendRoomMessage(roomId, messageId string) error {
	return appendRoomMessage(p, roomId, messageId)
}

func (p *BuntDBPersist) RemoveRoomMessage(roomId, messageId string) error {
	return removeRoomMessage(p, roomId, messageId)
}

func (p *BuntDBPersist) DeleteRoom(id string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		return buntDelete(tx, buntRoomPrefix+id)
	})
}

func (p *BuntDBPersist) Close() error {
	globals.AppLogger.Debug("closing buntdb")
	return p.db.Close()
}
