package messaging

import (
	"sort"
	"time"

	"github.com/tcriess/lightspeed-messenger/types"
)

// updateUser applies the partial update and pushes the new profile to the user's sessions. Changes of the displayed
// fields also reach the user's private rooms.
func (s *Service) updateUser(c *types.UpdateUser) (*types.User, error) {
	user, err := s.persister.UpdateUser(c.UserId, func(u *types.User) error {
		c.UserUpdate.Apply(u)
		return nil
	})
	if err != nil {
		return nil, notFound("user", c.UserId, err)
	}
	s.forgetSender(user.Id)
	s.router.FanoutToUser(user.Id, types.NewEvent(types.EventUserUpdated, user))
	if !c.UserUpdate.TouchesDisplay() {
		return user, nil
	}
	rooms, err := s.persister.GetRoomsForParticipant(user.Id)
	if err != nil {
		return nil, err
	}
	participant := types.NewEvent(types.EventParticipantUpdated, types.ParticipantUpdatedData{
		UserId:   user.Id,
		Name:     user.Name,
		LastName: user.LastName,
		Avatar:   user.Avatar,
	})
	for _, r := range rooms {
		if r.Type == types.RoomTypePrivate {
			s.router.Fanout(r.Id, participant)
		}
	}
	return user, nil
}

func (s *Service) getUser(c *types.GetUser) (*types.User, error) {
	user, err := s.persister.GetUser(c.UserId)
	if err != nil {
		return nil, notFound("user", c.UserId, err)
	}
	return user, nil
}

// updateScrollPosition returns the full track list if the client asked for the echo, nil otherwise.
func (s *Service) updateScrollPosition(c *types.UpdateScrollPosition) ([]types.ScrollPosition, error) {
	user, err := s.persister.UpdateUser(c.UserId, func(u *types.User) error {
		u.SetScrollPosition(c.RoomId, c.ScrollPos)
		return nil
	})
	if err != nil {
		return nil, notFound("user", c.UserId, err)
	}
	if !c.ShouldEcho() {
		return nil, nil
	}
	return user.RoomMessageTrack, nil
}

func (s *Service) roomViews(userId string) ([]*types.RoomView, error) {
	rooms, err := s.persister.GetRoomsForParticipant(userId)
	if err != nil {
		return nil, err
	}
	return s.roomViewsOf(userId, rooms)
}

// roomViewsOf decorates the rooms with the user's last visible message and unseen count, most recent activity
// first.
func (s *Service) roomViewsOf(userId string, rooms []*types.Room) ([]*types.RoomView, error) {
	views := make([]*types.RoomView, 0, len(rooms))
	for _, r := range rooms {
		last, err := s.persister.GetLatestVisibleMessage(r.Id, userId)
		if err != nil {
			return nil, err
		}
		s.populate(last)
		unseen, err := s.persister.CountUnseen(r.Id, userId)
		if err != nil {
			return nil, err
		}
		views = append(views, &types.RoomView{Room: r, LastMessage: last, UnseenCount: unseen})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return activity(views[i]).After(activity(views[j]))
	})
	return views, nil
}

func activity(v *types.RoomView) time.Time {
	if v.LastMessage != nil {
		return v.LastMessage.CreatedAt
	}
	return v.CreatedAt
}

func (s *Service) openRoom(c *types.OpenRoom) (*types.RoomDetail, error) {
	r, err := s.persister.FindRoom(c.Query)
	if err != nil {
		return nil, notFound("room", c.Query, err)
	}
	history, err := s.persister.GetRoomMessages(r.Id)
	if err != nil {
		return nil, err
	}
	s.populate(history...)
	detail := &types.RoomDetail{Room: r, History: history}
	if r.Type == types.RoomTypePrivate {
		detail.Members, err = s.persister.GetUsersByIds(r.Participants)
		if err != nil {
			return nil, err
		}
	}
	return detail, nil
}

func (s *Service) roomMembers(c *types.GetRoomMembers) ([]*types.User, error) {
	r, err := s.persister.GetRoom(c.RoomId)
	if err != nil {
		return nil, notFound("room", c.RoomId, err)
	}
	return s.persister.GetUsersByIds(r.Participants)
}

// voiceListeners lists each known listener once, in play order, with the time of the first play.
func (s *Service) voiceListeners(c *types.GetVoiceListeners) ([]types.VoiceListener, error) {
	message, err := s.persister.GetMessage(c.Id)
	if err != nil {
		return nil, notFound("message", c.Id, err)
	}
	listeners := make([]types.VoiceListener, 0)
	if message.Voice == nil {
		return listeners, nil
	}
	records := message.Voice.Listeners()
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ListenerId)
	}
	users, err := s.persister.GetUsersByIds(ids)
	if err != nil {
		return nil, err
	}
	byId := make(map[string]*types.User, len(users))
	for _, u := range users {
		byId[u.Id] = u
	}
	for _, rec := range records {
		if u, ok := byId[rec.ListenerId]; ok {
			listeners = append(listeners, types.VoiceListener{User: u, PlayedAt: rec.PlayedAt})
		}
	}
	return listeners, nil
}
