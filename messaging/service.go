package messaging

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/filter"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/persistence"
	"github.com/tcriess/lightspeed-messenger/presence"
	"github.com/tcriess/lightspeed-messenger/room"
	"github.com/tcriess/lightspeed-messenger/signals"
	"github.com/tcriess/lightspeed-messenger/types"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotAnnounced = errors.New("connection has not announced a user")
	ErrNotMember    = errors.New("user is not a participant of the room")
	ErrRejected     = errors.New("message rejected by policy")
)

// errNoChange aborts a persistence update without writing.
var errNoChange = errors.New("no change")

// Service executes the inbound commands of all connections. It is safe for concurrent use, commands of one
// connection are expected to be handled sequentially.
type Service struct {
	cfg       *config.Config
	persister persistence.Persister
	presence  *presence.Registry
	router    *room.Router
	typing    *signals.TypingTracker
	policy    *filter.Policy
	senders   *lru.ARCCache // user id -> *types.UserSummary
	now       func() time.Time
}

func NewService(cfg *config.Config, persister persistence.Persister, registry *presence.Registry, router *room.Router) (*Service, error) {
	policy, err := filter.NewPolicy(cfg.MessagePolicy)
	if err != nil {
		return nil, fmt.Errorf("message policy: %w", err)
	}
	cacheSize := cfg.UserCacheSize
	if cacheSize <= 0 {
		cacheSize = 1
	}
	senders, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:       cfg,
		persister: persister,
		presence:  registry,
		router:    router,
		typing:    signals.NewTypingTracker(),
		policy:    policy,
		senders:   senders,
		now:       time.Now,
	}, nil
}

// Connect makes a new connection known to the router. It has no identity until it announces one.
func (s *Service) Connect(conn room.Conn) {
	s.router.Register(conn)
	globals.AppLogger.Debug("connection registered", "conn", conn.Id())
}

// Handle executes one command for connId and returns its acknowledgment. Errors never close the connection.
func (s *Service) Handle(connId string, cmd types.Command) *types.Ack {
	var id string
	var data interface{}
	var err error
	switch c := cmd.(type) {
	case *types.Announce:
		data, err = s.announce(connId, c)
	case *types.SubscribeRoom:
		err = s.subscribeRoom(connId, c)
	case *types.CreateMessage:
		id, err = s.createMessage(connId, c)
	case *types.EditMessage:
		err = s.editMessage(c)
	case *types.DeleteMessage:
		err = s.deleteMessage(connId, c)
	case *types.MarkSeen:
		err = s.markSeen(c)
	case *types.PinMessage:
		err = s.pinMessage(c)
	case *types.Typing:
		err = s.startTyping(connId, c)
	case *types.StopTyping:
		err = s.stopTyping(connId, c)
	case *types.PlayVoice:
		err = s.playVoice(c)
	case *types.CreateRoom:
		id, data, err = s.createRoom(connId, c)
	case *types.JoinRoom:
		err = s.joinRoom(connId, c)
	case *types.UpdateRoom:
		data, err = s.updateRoom(c)
	case *types.DeleteRoom:
		err = s.deleteRoom(c)
	case *types.UpdateUser:
		data, err = s.updateUser(c)
	case *types.GetUser:
		data, err = s.getUser(c)
	case *types.UpdateScrollPosition:
		data, err = s.updateScrollPosition(c)
	case *types.ListRooms:
		data, err = s.roomViews(c.UserId)
	case *types.OpenRoom:
		data, err = s.openRoom(c)
	case *types.GetRoomMembers:
		data, err = s.roomMembers(c)
	case *types.GetVoiceListeners:
		data, err = s.voiceListeners(c)
	default:
		err = fmt.Errorf("%w: unsupported command %T", ErrValidation, cmd)
	}
	if err != nil {
		s.logFailure(connId, cmd, err)
		return types.AckError(err)
	}
	return types.AckOk(id, data)
}

func (s *Service) logFailure(connId string, cmd types.Command, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrRejected), errors.Is(err, ErrNotAnnounced),
		errors.Is(err, ErrNotMember), errors.Is(err, types.ErrInvalidCommand), errors.Is(err, presence.ErrAlreadyAnnounced):
		globals.AppLogger.Debug("command refused", "conn", connId, "command", cmd.GetCommandName(), "error", err)
	case errors.Is(err, persistence.ErrNotFound):
		globals.AppLogger.Info("command target not found", "conn", connId, "command", cmd.GetCommandName(), "error", err)
	default:
		globals.AppLogger.Error("command failed", "conn", connId, "command", cmd.GetCommandName(), "error", err)
	}
}

func (s *Service) requireUser(connId string) (string, error) {
	userId, ok := s.presence.UserOf(connId)
	if !ok {
		return "", ErrNotAnnounced
	}
	return userId, nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, persistence.ErrNotFound)
	}
	return err
}

// populate fills the sender display fields of the messages from the sender cache.
func (s *Service) populate(messages ...*types.Message) {
	for _, m := range messages {
		if m == nil {
			continue
		}
		m.Sender = s.senderSummary(m.SenderId)
	}
}

func (s *Service) senderSummary(userId string) *types.UserSummary {
	if cached, ok := s.senders.Get(userId); ok {
		return cached.(*types.UserSummary)
	}
	user, err := s.persister.GetUser(userId)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			globals.AppLogger.Error("could not load sender", "user", userId, "error", err)
		}
		return &types.UserSummary{Id: userId}
	}
	summary := user.Summary()
	s.senders.Add(userId, summary)
	return summary
}

func (s *Service) forgetSender(userId string) {
	s.senders.Remove(userId)
}
