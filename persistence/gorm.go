package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no dsn for %s persistence", cfg.PersistenceConfig.Type)
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if cfg.PersistenceConfig.Type == "sqlite" {
		// one writer at a time, and in-memory databases are per connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	err = db.Migrator().AutoMigrate(&types.User{}, &types.Room{}, &types.Message{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// forUpdate locks the selected row on postgres. The sqlite dialect drops the clause.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (p *GormPersist) StoreUser(user *types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error
}

func (p *GormPersist) GetUser(id string) (*types.User, error) {
	user := &types.User{}
	err := p.db.First(user, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Order("id").Find(&users).Error
	return users, err
}

func (p *GormPersist) GetUsersByIds(ids []string) ([]*types.User, error) {
	if len(ids) == 0 {
		return []*types.User{}, nil
	}
	found := make([]*types.User, 0, len(ids))
	err := p.db.Where("id IN ?", ids).Find(&found).Error
	if err != nil {
		return nil, err
	}
	byId := make(map[string]*types.User, len(found))
	for _, user := range found {
		byId[user.Id] = user
	}
	users := make([]*types.User, 0, len(found))
	for _, id := range ids {
		if user, ok := byId[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (p *GormPersist) UpdateUser(id string, fn func(*types.User) error) (*types.User, error) {
	user := &types.User{}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(user, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if err := fn(user); err != nil {
			return err
		}
		return tx.Save(user).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *GormPersist) DeleteUser(id string) error {
	res := p.db.Delete(&types.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) CreateMessage(message *types.Message) error {
	err := p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Unscoped().Model(&types.Message{}).Where("temp_id = ? OR id = ?", message.TempId, message.Id).Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateTempId
		}
		var maxSeq int64
		err = tx.Unscoped().Model(&types.Message{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error
		if err != nil {
			return err
		}
		message.Seq = maxSeq + 1
		return tx.Omit(clause.Associations).Create(message).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateTempId
	}
	return err
}

func (p *GormPersist) GetMessage(id string) (*types.Message, error) {
	message := &types.Message{}
	err := p.db.First(message, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return message, nil
}

func (p *GormPersist) GetMessageByTempId(tempId string) (*types.Message, error) {
	message := &types.Message{}
	err := p.db.First(message, "temp_id = ?", tempId).Error
	if err != nil {
		return nil, translate(err)
	}
	return message, nil
}

func (p *GormPersist) GetRoomMessages(roomId string) ([]*types.Message, error) {
	messages := make([]*types.Message, 0)
	err := p.db.Where("room_id = ?", roomId).Order("seq").Find(&messages).Error
	return messages, err
}

func (p *GormPersist) UpdateMessage(id string, fn func(*types.Message) error) (*types.Message, error) {
	message := &types.Message{}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(message, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if err := fn(message); err != nil {
			return err
		}
		return tx.Save(message).Error
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}

// DeleteMessage soft deletes, the row keeps the temp id reserved.
func (p *GormPersist) DeleteMessage(id string) error {
	res := p.db.Delete(&types.Message{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) DeleteRoomMessages(roomId string) error {
	return p.db.Where("room_id = ?", roomId).Delete(&types.Message{}).Error
}

func (p *GormPersist) GetLatestVisibleMessage(roomId, hiddenFor string) (*types.Message, error) {
	rows, err := p.db.Model(&types.Message{}).Where("room_id = ?", roomId).Order("seq DESC").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		message := &types.Message{}
		if err := p.db.ScanRows(rows, message); err != nil {
			return nil, err
		}
		if message.VisibleFor(hiddenFor) {
			return message, nil
		}
	}
	return nil, rows.Err()
}

func (p *GormPersist) CountUnseen(roomId, userId string) (int64, error) {
	messages := make([]*types.Message, 0)
	err := p.db.Select("id", "sender_id", "seen_by").Where("room_id = ? AND sender_id <> ?", roomId, userId).Find(&messages).Error
	if err != nil {
		return 0, err
	}
	var count int64
	for _, message := range messages {
		if !message.SeenBy.Contains(userId) {
			count++
		}
	}
	return count, nil
}

func (p *GormPersist) CreateRoom(room *types.Room) error {
	return p.db.Create(room).Error
}

func (p *GormPersist) StoreRoom(room *types.Room) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(room).Error
}

func (p *GormPersist) GetRoom(id string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.First(room, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return room, nil
}

func (p *GormPersist) GetRoomByName(name string) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.Order("created_at").First(room, "name = ?", name).Error
	if err != nil {
		return nil, translate(err)
	}
	return room, nil
}

func (p *GormPersist) FindRoom(nameOrId string) (*types.Room, error) {
	return findRoom(p, nameOrId)
}

func (p *GormPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Order("id").Find(&rooms).Error
	return rooms, err
}

// GetRoomsForParticipant narrows the candidates with LIKE on the JSON column and checks membership exactly.
func (p *GormPersist) GetRoomsForParticipant(userId string) ([]*types.Room, error) {
	candidates := make([]*types.Room, 0)
	quoted := `"` + strings.ReplaceAll(userId, `"`, `\"`) + `"`
	err := p.db.Where("CAST(participants AS TEXT) LIKE ?", "%"+quoted+"%").Order("id").Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	rooms := make([]*types.Room, 0, len(candidates))
	for _, room := range candidates {
		if room.Participants.Contains(userId) {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (p *GormPersist) UpdateRoom(id string, fn func(*types.Room) error) (*types.Room, error) {
	room := &types.Room{}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(room, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if err := fn(room); err != nil {
			return err
		}
		return tx.Save(room).Error
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *GormPersist) AppendRoomMessage(roomId, messageId string) error {
	return appendRoomMessage(p, roomId, messageId)
}

func (p *GormPersist) RemoveRoomMessage(roomId, messageId string) error {
	return removeRoomMessage(p, roomId, messageId)
}

func (p *GormPersist) DeleteRoom(id string) error {
	res := p.db.Delete(&types.Room{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	globals.AppLogger.Debug("closing gorm database")
	return sqlDB.Close()
}
