package ws

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
	"github.com/tcriess/lightspeed-messenger/messaging"
)

type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// closed when Run returns
	done chan struct{}

	// global configuration
	Cfg *config.Config

	svc *messaging.Service

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(cfg *config.Config, svc *messaging.Service) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		Cfg:        cfg,
		svc:        svc,
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Run is the main hub event loop handling register and unregister events. It also runs the periodic typing sweep.
// When ctx is cancelled all clients are closed and Run returns. The loop never touches the store: presence
// teardown happens on the connection's own goroutine (see release).
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if h.Cfg.TypingConfig.TTL > 0 && h.Cfg.TypingConfig.SweepSpec != "" {
		_, err := cronRunner.AddFunc(h.Cfg.TypingConfig.SweepSpec, func() {
			h.svc.SweepTyping()
		})
		if err != nil {
			globals.AppLogger.Error("could not schedule typing sweep", "spec", h.Cfg.TypingConfig.SweepSpec, "error", err)
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			h.svc.Connect(client)
			client.Done()

		case client := <-h.Unregister:
			h.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.Unlock()
			if ok {
				client.close()
			}

		case <-ctx.Done():
			h.Lock()
			clients := h.clients
			h.clients = make(map[*Client]struct{})
			h.Unlock()
			for client := range clients {
				client.close()
			}
			globals.AppLogger.Info("hub stopped", "clients", len(clients))
			return
		}
	}
}

// register hands the client to the hub loop and waits until it is registered. It returns false if the hub is not
// running anymore.
func (h *Hub) register(c *Client) bool {
	c.Add(1)
	select {
	case h.Register <- c:
		c.Wait()
		return true
	case <-h.done:
		c.Done()
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// release unregisters the client and tears down its presence. It runs on the connection's goroutine.
func (h *Hub) release(c *Client) {
	h.unregister(c)
	h.svc.Disconnect(c.Id())
}
