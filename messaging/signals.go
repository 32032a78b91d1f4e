package messaging

import (
	"errors"
	"fmt"

	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/types"
)

// startTyping broadcasts only if the name was not typing in the room yet.
func (s *Service) startTyping(connId string, c *types.Typing) error {
	if err := s.requireSubscribed(connId, c.RoomId); err != nil {
		return err
	}
	userId, _ := s.presence.UserOf(connId)
	if !s.typing.Start(c.RoomId, c.DisplayName, userId, s.now()) {
		return nil
	}
	s.router.Fanout(c.RoomId, types.NewEvent(types.EventTyping, types.TypingData{RoomId: c.RoomId, DisplayName: c.DisplayName, UserId: userId}))
	return nil
}

func (s *Service) stopTyping(connId string, c *types.StopTyping) error {
	if err := s.requireSubscribed(connId, c.RoomId); err != nil {
		return err
	}
	s.typing.Stop(c.RoomId, c.DisplayName)
	s.router.Fanout(c.RoomId, types.NewEvent(types.EventStopTyping, types.TypingData{RoomId: c.RoomId, DisplayName: c.DisplayName}))
	return nil
}

// requireSubscribed admits signals only from connections subscribed to the room.
func (s *Service) requireSubscribed(connId, roomId string) error {
	if !s.router.Subscribed(connId, roomId) {
		return fmt.Errorf("%w: connection %s is not subscribed to %s", ErrNotMember, connId, roomId)
	}
	return nil
}

// SweepTyping expires the typing entries older than the configured TTL and broadcasts their stop.
func (s *Service) SweepTyping() int {
	ttl := s.cfg.TypingConfig.TTL
	if ttl <= 0 {
		return 0
	}
	expired := s.typing.Sweep(s.now().Add(-ttl))
	for _, typist := range expired {
		s.router.Fanout(typist.RoomId, types.NewEvent(types.EventStopTyping, types.TypingData{RoomId: typist.RoomId, DisplayName: typist.DisplayName, UserId: typist.UserId}))
	}
	if len(expired) > 0 {
		globals.AppLogger.Debug("expired typing indicators", "count", len(expired))
	}
	return len(expired)
}

// playVoice always broadcasts the playback, the listener is recorded on its first play only.
func (s *Service) playVoice(c *types.PlayVoice) error {
	message, err := s.persister.GetMessage(c.Id)
	if err != nil {
		return notFound("message", c.Id, err)
	}
	if message.Voice == nil {
		return fmt.Errorf("%w: message %s has no voice payload", ErrValidation, c.Id)
	}
	s.router.Fanout(message.RoomId, types.NewEvent(types.EventVoicePlayed, types.VoicePlayedData{Id: message.Id, RoomId: message.RoomId, ListenerId: c.ListenerId}))
	now := s.now()
	_, err = s.persister.UpdateMessage(c.Id, func(m *types.Message) error {
		if m.Voice == nil || !m.Voice.RecordPlayback(c.ListenerId, now) {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return notFound("message", c.Id, err)
	}
	return nil
}
