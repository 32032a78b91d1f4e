package messaging

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/types"
)

// createRoom dedupes private rooms on their name and group/channel rooms on their id. An existing room is returned
// without any room broadcast, only a pending initial message is (re)sent through the pipeline.
func (s *Service) createRoom(connId string, c *types.CreateRoom) (string, *types.Room, error) {
	creatorId, err := s.requireUser(connId)
	if err != nil {
		return "", nil, err
	}
	var existing *types.Room
	if c.Room.Type == types.RoomTypePrivate {
		existing, err = s.persister.GetRoomByName(c.Room.Name)
	} else {
		existing, err = s.persister.GetRoom(c.Room.Id)
	}
	if err == nil {
		globals.AppLogger.Debug("room exists", "room", existing.Id, "name", existing.Name)
		if c.Message == nil {
			return existing.Id, existing, nil
		}
		if _, err := s.createMessage(connId, c.Message.AsCreateMessage(existing.Id)); err != nil {
			return existing.Id, existing, fmt.Errorf("initial message of room %s failed: %w", existing.Id, err)
		}
		return existing.Id, s.reloadRoom(existing), nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return "", nil, err
	}

	r := &types.Room{
		Id:           c.Room.Id,
		Name:         c.Room.Name,
		Type:         c.Room.Type,
		Avatar:       c.Room.Avatar,
		Description:  c.Room.Description,
		Biography:    c.Room.Biography,
		Link:         c.Room.Link,
		CreatorId:    creatorId,
		Participants: types.StringList{},
		Admins:       types.StringList{},
		Messages:     types.StringList{},
		CreatedAt:    s.now(),
	}
	if r.Type == types.RoomTypePrivate {
		r.Id = uuid.NewString()
	}
	r.Participants.AddUnique(creatorId)
	for _, userId := range c.Room.Participants {
		if userId != "" {
			r.Participants.AddUnique(userId)
		}
	}
	for _, userId := range c.Room.Admins {
		if userId != "" {
			r.Admins.AddUnique(userId)
		}
	}
	if r.Type != types.RoomTypePrivate {
		r.Admins.AddUnique(creatorId)
	}
	if err := s.persister.CreateRoom(r); err != nil {
		return "", nil, fmt.Errorf("could not create room: %w", err)
	}
	globals.AppLogger.Info("room created", "room", r.Id, "type", r.Type, "creator", creatorId)

	var initial *types.Message
	var messageErr error
	if c.Message != nil {
		var id string
		id, messageErr = s.createMessage(connId, c.Message.AsCreateMessage(r.Id))
		if messageErr == nil {
			r = s.reloadRoom(r)
			initial, _ = s.persister.GetMessage(id)
		}
	}

	s.router.Subscribe(connId, r.Id)
	for _, userId := range r.Participants {
		s.router.SubscribeUser(userId, r.Id)
	}
	s.router.Fanout(r.Id, types.NewEvent(types.EventRoomCreated, r))
	if initial != nil {
		s.router.Fanout(r.Id, s.lastMessageUpdate(r.Id, initial))
	}
	if messageErr != nil {
		return r.Id, r, fmt.Errorf("room %s created, initial message failed: %w", r.Id, messageErr)
	}
	return r.Id, r, nil
}

func (s *Service) reloadRoom(r *types.Room) *types.Room {
	reloaded, err := s.persister.GetRoom(r.Id)
	if err != nil {
		return r
	}
	return reloaded
}

// subscribeRoom subscribes the connection after verifying its user participates in the room.
func (s *Service) subscribeRoom(connId string, c *types.SubscribeRoom) error {
	userId, err := s.requireUser(connId)
	if err != nil {
		return err
	}
	r, err := s.persister.GetRoom(c.RoomId)
	if err != nil {
		return notFound("room", c.RoomId, err)
	}
	if !r.Participants.Contains(userId) {
		return fmt.Errorf("%w: %s in %s", ErrNotMember, userId, r.Id)
	}
	s.router.Subscribe(connId, r.Id)
	return nil
}

// joinRoom adds the user to the participants once and subscribes the user's sessions. The origin connection is
// subscribed too if its own user participates in the room.
func (s *Service) joinRoom(connId string, c *types.JoinRoom) error {
	r, err := s.persister.UpdateRoom(c.RoomId, func(r *types.Room) error {
		if !r.Participants.AddUnique(c.UserId) {
			return errNoChange
		}
		return nil
	})
	joined := err == nil
	if errors.Is(err, errNoChange) {
		r, err = s.persister.GetRoom(c.RoomId)
	}
	if err != nil {
		return notFound("room", c.RoomId, err)
	}
	if userId, ok := s.presence.UserOf(connId); ok && r.Participants.Contains(userId) {
		s.router.Subscribe(connId, r.Id)
	}
	s.router.SubscribeUser(c.UserId, r.Id)
	if joined {
		s.router.Fanout(r.Id, types.NewEvent(types.EventRoomJoined, types.RoomJoinedData{RoomId: r.Id, UserId: c.UserId}))
	}
	return nil
}

// updateRoom reaches the room's subscribers and the participants' sessions, each connection once.
func (s *Service) updateRoom(c *types.UpdateRoom) (*types.Room, error) {
	r, err := s.persister.UpdateRoom(c.RoomId, func(r *types.Room) error {
		c.Fields.Apply(r)
		return nil
	})
	if err != nil {
		return nil, notFound("room", c.RoomId, err)
	}
	s.router.FanoutRoomAndUsers(r.Id, r.Participants, types.NewEvent(types.EventRoomUpdated, r))
	return r, nil
}

// deleteRoom broadcasts the deletion and the empty last message before deleting the room and its messages.
func (s *Service) deleteRoom(c *types.DeleteRoom) error {
	r, err := s.persister.GetRoom(c.RoomId)
	if err != nil {
		return notFound("room", c.RoomId, err)
	}
	s.router.Fanout(r.Id, types.NewEvent(types.EventRoomDeleted, types.RoomDeletedData{RoomId: r.Id}))
	s.router.Fanout(r.Id, types.NewEvent(types.EventLastMessageUpdate, types.LastMessageUpdateData{RoomId: r.Id}))
	s.router.DropRoom(r.Id)
	if err := s.persister.DeleteRoom(r.Id); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	if err := s.persister.DeleteRoomMessages(r.Id); err != nil {
		return err
	}
	globals.AppLogger.Info("room deleted", "room", r.Id)
	return nil
}
