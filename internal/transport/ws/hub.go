package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/vedran77/textswap/pkg/logger"
)

// Hub tracks connected clients so events can be addressed to a user on
// every socket they have open.
type Hub struct {
	// clients maps userID → open sockets.
	clients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	direct     chan *directMsg
	stopped    chan struct{}

	log *logger.Logger
}

type directMsg struct {
	userID string
	data   []byte
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan *directMsg, 256),
		stopped:    make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Run starts the Hub's main event loop. Call this in a goroutine; it
// returns when ctx is cancelled and disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]struct{})
			}
			h.clients[client.userID][client] = struct{}{}
			h.log.Debug("client connected", zap.String("user_id", client.userID), zap.Int("sockets", len(h.clients[client.userID])))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.direct:
			for client := range h.clients[msg.userID] {
				if !client.enqueue(msg.data) {
					h.log.Warn("dropping slow client", zap.String("user_id", client.userID))
					h.remove(client)
				}
			}

		case <-ctx.Done():
			for _, sockets := range h.clients {
				for client := range sockets {
					client.close()
				}
			}
			clear(h.clients)
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	sockets, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := sockets[client]; !ok {
		return
	}
	delete(sockets, client)
	if len(sockets) == 0 {
		delete(h.clients, client.userID)
	}
	client.close()
	h.log.Debug("client disconnected", zap.String("user_id", client.userID))
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// SendToUser queues data for every socket the user has open.
func (h *Hub) SendToUser(ctx context.Context, userID string, data []byte) error {
	select {
	case h.direct <- &directMsg{userID: userID, data: data}:
		return nil
	case <-h.stopped:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
