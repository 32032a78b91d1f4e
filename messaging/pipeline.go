package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tcriess/lightspeed-messenger/filter"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/types"
	"gorm.io/datatypes"
)

// createMessage is idempotent on the temp id: a retried (or concurrently duplicated) create is answered from the
// stored message and repeats the broadcasts, so the room ends up in the same state as after the first attempt.
func (s *Service) createMessage(connId string, c *types.CreateMessage) (string, error) {
	senderId, err := s.requireUser(connId)
	if err != nil {
		return "", err
	}
	r, err := s.persister.GetRoom(c.RoomId)
	if err != nil {
		return "", notFound("room", c.RoomId, err)
	}
	if !r.Participants.Contains(senderId) {
		return "", fmt.Errorf("%w: %s in %s", ErrNotMember, senderId, r.Id)
	}
	if !s.accept(r, senderId, c) {
		return "", ErrRejected
	}

	existing, err := s.persister.GetMessageByTempId(c.TempId)
	if err == nil {
		globals.AppLogger.Debug("retried message", "temp_id", c.TempId, "id", existing.Id)
		return s.redeliver(connId, existing)
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return "", err
	}

	message, err := s.newMessage(senderId, c)
	if err != nil {
		return "", err
	}
	err = s.persister.CreateMessage(message)
	if errors.Is(err, persistence.ErrDuplicateTempId) {
		existing, err := s.persister.GetMessageByTempId(c.TempId)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return "", fmt.Errorf("message with temp id %s was deleted: %w", c.TempId, persistence.ErrNotFound)
			}
			return "", err
		}
		return s.redeliver(connId, existing)
	}
	if err != nil {
		return "", fmt.Errorf("could not persist message: %w", err)
	}

	stored, err := s.persister.GetMessage(message.Id)
	if err != nil {
		return "", err
	}
	s.populate(stored)
	s.broadcastNew(connId, stored)
	if err := s.linkMessage(stored); err != nil {
		return "", err
	}
	return stored.Id, nil
}

// redeliver answers a retry from the stored message and repairs the references a failed attempt may have left out.
func (s *Service) redeliver(connId string, message *types.Message) (string, error) {
	s.populate(message)
	s.broadcastNew(connId, message)
	if err := s.linkMessage(message); err != nil {
		return "", err
	}
	return message.Id, nil
}

func (s *Service) newMessage(senderId string, c *types.CreateMessage) (*types.Message, error) {
	id, err := types.MessageIdFor(c.TempId)
	if err != nil {
		return nil, err
	}
	message := &types.Message{
		Id:        id,
		RoomId:    c.RoomId,
		SenderId:  senderId,
		Body:      c.Body,
		TempId:    c.TempId,
		Status:    types.MessageStatusSent,
		Voice:     c.Voice,
		File:      c.File,
		SeenBy:    types.StringList{},
		HideFor:   types.StringList{},
		Replies:   types.StringList{},
		CreatedAt: s.now(),
	}
	if message.Voice != nil {
		message.Voice.PlayedBy = nil
	}
	if c.ReplyTo != nil {
		message.ReplyTargetId = c.ReplyTo.TargetId
		if c.ReplyTo.Snapshot != nil {
			snapshot, err := json.Marshal(c.ReplyTo.Snapshot)
			if err != nil {
				return nil, fmt.Errorf("%w: replyTo.snapshot: %s", ErrValidation, err)
			}
			message.ReplyTo = datatypes.JSON(snapshot)
		}
	}
	return message, nil
}

func (s *Service) accept(r *types.Room, senderId string, c *types.CreateMessage) bool {
	env := filter.Env{
		Room:     filter.Room{Id: r.Id, Type: r.Type},
		Sender:   filter.Sender{Id: senderId, Username: s.senderSummary(senderId).Username},
		Body:     c.Body,
		HasVoice: c.Voice != nil,
		HasFile:  c.File != nil,
		IsReply:  c.ReplyTo != nil,
	}
	return s.policy.Allow(env)
}

// broadcastNew sends the new message to the peers, the id reconciliation to the origin and the last message
// summary to the whole room.
func (s *Service) broadcastNew(connId string, message *types.Message) {
	s.router.FanoutExcept(message.RoomId, connId, types.NewEvent(types.EventNewMessage, message))
	s.router.Send(connId, types.NewEvent(types.EventMessageIdUpdate, types.MessageIdUpdateData{TempId: message.TempId, Id: message.Id}))
	s.router.Fanout(message.RoomId, types.NewEvent(types.EventLastMessageUpdate, types.LastMessageUpdateData{RoomId: message.RoomId, Message: message}))
}

// linkMessage records the reply back-reference and appends the message to the room. Both writes are idempotent.
func (s *Service) linkMessage(message *types.Message) error {
	if message.ReplyTargetId != "" {
		_, err := s.persister.UpdateMessage(message.ReplyTargetId, func(target *types.Message) error {
			if !target.Replies.AddUnique(message.Id) {
				return errNoChange
			}
			return nil
		})
		switch {
		case err == nil, errors.Is(err, errNoChange):
		case errors.Is(err, persistence.ErrNotFound):
			globals.AppLogger.Warn("reply target is gone", "id", message.Id, "target", message.ReplyTargetId)
		default:
			return fmt.Errorf("could not link reply: %w", err)
		}
	}
	err := s.persister.AppendRoomMessage(message.RoomId, message.Id)
	if err != nil {
		return fmt.Errorf("could not append message to room: %w", notFound("room", message.RoomId, err))
	}
	return nil
}

func (s *Service) lastMessageUpdate(roomId string, message *types.Message) *types.Event {
	s.populate(message)
	return types.NewEvent(types.EventLastMessageUpdate, types.LastMessageUpdateData{RoomId: roomId, Message: message})
}

// editMessage persists first; an edit of the room's newest message also refreshes the last message summary.
func (s *Service) editMessage(c *types.EditMessage) error {
	message, err := s.persister.UpdateMessage(c.Id, func(m *types.Message) error {
		m.Body = c.Body
		m.Edited = true
		return nil
	})
	if err != nil {
		return notFound("message", c.Id, err)
	}
	s.router.Fanout(message.RoomId, types.NewEvent(types.EventMessageEdited, types.MessageEditedData{Id: message.Id, RoomId: message.RoomId, Body: message.Body}))
	latest, err := s.persister.GetLatestVisibleMessage(message.RoomId, "")
	if err != nil {
		return err
	}
	if latest != nil && latest.Id == message.Id {
		s.router.Fanout(message.RoomId, s.lastMessageUpdate(message.RoomId, latest))
	}
	return nil
}

func (s *Service) deleteMessage(connId string, c *types.DeleteMessage) error {
	if c.Scope == types.DeleteScopeMe {
		return s.hideMessage(connId, c)
	}
	message, err := s.persister.GetMessage(c.Id)
	if err != nil {
		return notFound("message", c.Id, err)
	}
	// the room ref goes first, a failed delete must not leave a ref to a missing message
	if err := s.persister.RemoveRoomMessage(message.RoomId, message.Id); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	if err := s.persister.DeleteMessage(message.Id); err != nil {
		return notFound("message", c.Id, err)
	}
	requesterId, _ := s.presence.UserOf(connId)
	latest, err := s.persister.GetLatestVisibleMessage(message.RoomId, requesterId)
	if err != nil {
		return err
	}
	s.router.Fanout(message.RoomId, types.NewEvent(types.EventMessageDeleted, types.MessageDeletedData{Id: message.Id, RoomId: message.RoomId, Scope: types.DeleteScopeEveryone}))
	s.router.Fanout(message.RoomId, s.lastMessageUpdate(message.RoomId, latest))
	return nil
}

// hideMessage is the soft delete for the requester only, the events go to the requesting connection.
func (s *Service) hideMessage(connId string, c *types.DeleteMessage) error {
	requesterId, err := s.requireUser(connId)
	if err != nil {
		return err
	}
	message, err := s.persister.UpdateMessage(c.Id, func(m *types.Message) error {
		if !m.HideFor.AddUnique(requesterId) {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		message, err = s.persister.GetMessage(c.Id)
	}
	if err != nil {
		return notFound("message", c.Id, err)
	}
	latest, err := s.persister.GetLatestVisibleMessage(message.RoomId, requesterId)
	if err != nil {
		return err
	}
	s.router.Send(connId, types.NewEvent(types.EventMessageDeleted, types.MessageDeletedData{Id: message.Id, RoomId: message.RoomId, Scope: types.DeleteScopeMe}))
	s.router.Send(connId, s.lastMessageUpdate(message.RoomId, latest))
	return nil
}

// markSeen adds the reader at most once and always records the read time.
func (s *Service) markSeen(c *types.MarkSeen) error {
	readTime := c.ReadTime(s.now())
	message, err := s.persister.UpdateMessage(c.Id, func(m *types.Message) error {
		m.SeenBy.AddUnique(c.ReaderId)
		t := readTime
		m.ReadTime = &t
		return nil
	})
	if err != nil {
		return notFound("message", c.Id, err)
	}
	s.router.Fanout(message.RoomId, types.NewEvent(types.EventMessageSeen, types.MessageSeenData{Id: message.Id, RoomId: message.RoomId, ReaderId: c.ReaderId, ReadTime: readTime}))
	return nil
}

func (s *Service) pinMessage(c *types.PinMessage) error {
	now := s.now()
	message, err := s.persister.UpdateMessage(c.Id, func(m *types.Message) error {
		m.TogglePin(now)
		return nil
	})
	if err != nil {
		return notFound("message", c.Id, err)
	}
	s.router.Fanout(message.RoomId, types.NewEvent(types.EventMessagePinned, types.MessagePinnedData{Id: message.Id, RoomId: message.RoomId, PinnedAt: message.PinnedAt}))
	if c.IsLastMessage {
		s.router.Fanout(message.RoomId, s.lastMessageUpdate(message.RoomId, message))
	}
	return nil
}
