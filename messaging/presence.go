package messaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/folkengine/goname"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/types"
)

// announce binds the user to the connection and subscribes it to all the user's rooms. The online list goes to the
// connection, and to all of the user's rooms if this is the user's first session.
func (s *Service) announce(connId string, c *types.Announce) ([]*types.RoomView, error) {
	user, err := s.loadOrCreateUser(c.UserId)
	if err != nil {
		return nil, err
	}
	first, err := s.presence.Add(connId, user.Id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if first {
		s.setStatus(user.Id, types.UserStatusOnline)
	}
	rooms, err := s.persister.GetRoomsForParticipant(user.Id)
	if err != nil {
		return nil, err
	}
	roomIds := make([]string, 0, len(rooms))
	for _, r := range rooms {
		s.router.Subscribe(connId, r.Id)
		roomIds = append(roomIds, r.Id)
	}
	online := s.onlineUsersEvent()
	if first && len(roomIds) > 0 {
		s.router.FanoutRooms(roomIds, online)
	} else {
		s.router.Send(connId, online)
	}
	globals.AppLogger.Info("user announced", "conn", connId, "user", user.Id, "first_session", first, "rooms", len(roomIds))
	return s.roomViewsOf(user.Id, rooms)
}

func (s *Service) loadOrCreateUser(userId string) (*types.User, error) {
	user, err := s.persister.GetUser(userId)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, persistence.ErrNotFound) || !s.cfg.GuestUsers {
		return nil, notFound("user", userId, err)
	}
	user = newGuest(userId)
	if err := s.persister.StoreUser(user); err != nil {
		return nil, err
	}
	globals.AppLogger.Info("created guest user", "user", userId, "name", user.Name)
	return user, nil
}

func newGuest(userId string) *types.User {
	user := &types.User{
		Id:       userId,
		Username: userId,
		Status:   types.UserStatusOffline,
	}
	names := strings.Fields(goname.New(goname.FantasyMap).FirstLast())
	if len(names) > 0 {
		user.Name = names[0]
		user.LastName = strings.Join(names[1:], " ")
	}
	return user
}

// setStatus persists the presence transition. Presence itself is kept in memory, a failed write is only logged.
// The write is skipped if the registry no longer agrees with status.
func (s *Service) setStatus(userId, status string) {
	_, err := s.persister.UpdateUser(userId, func(u *types.User) error {
		if s.presence.Online(userId) != (status == types.UserStatusOnline) {
			return errNoChange
		}
		u.Status = status
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		globals.AppLogger.Error("could not persist user status", "user", userId, "status", status, "error", err)
	}
}

func (s *Service) onlineUsersEvent() *types.Event {
	return types.NewEvent(types.EventOnlineUsers, types.OnlineUsersData{Users: s.presence.OnlineUsers()})
}

// Disconnect tears down the connection state. If it was the user's last session the user goes offline and the new
// online list is sent to the rooms the connection was subscribed to.
func (s *Service) Disconnect(connId string) {
	rooms := s.router.Unregister(connId)
	userId, last := s.presence.Remove(connId)
	globals.AppLogger.Debug("connection unregistered", "conn", connId, "user", userId, "last_session", last)
	if !last {
		return
	}
	for _, typist := range s.typing.StopUser(userId) {
		s.router.Fanout(typist.RoomId, types.NewEvent(types.EventStopTyping, types.TypingData{RoomId: typist.RoomId, DisplayName: typist.DisplayName, UserId: userId}))
	}
	s.setStatus(userId, types.UserStatusOffline)
	s.router.FanoutRooms(rooms, s.onlineUsersEvent())
	globals.AppLogger.Info("user offline", "user", userId)
}

// Presence returns the presence view of userId.
func (s *Service) Presence(userId string) types.Presence {
	return types.Presence{
		UserId:   userId,
		Online:   s.presence.Online(userId),
		Sessions: len(s.presence.Sessions(userId)),
	}
}
