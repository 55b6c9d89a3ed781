package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/handlers"
	"github.com/smartdesignpro/collab/internal/metrics"
)

// Router is what the hub dispatches to
type Router interface {
	Route(ctx context.Context, ch handlers.Channel, msg []byte) error
	Disconnect(ch handlers.Channel) error
}

// frame: one inbound message, or a disconnect when disconnect is set.
// Both share the inbound queue so a disconnect never overtakes a message
// the same client sent before it.
type frame struct {
	client     *Client
	msg        []byte
	disconnect bool
}

// Hub runs every inbound event and disconnect on one goroutine, in arrival
// order, so room and canvas changes never interleave
type Hub struct {
	router   Router
	inbound  chan frame
	register chan *Client
	clients  map[*Client]struct{}
	done     chan struct{}
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewHub(router Router, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		router:   router,
		inbound:  make(chan frame, 256),
		register: make(chan *Client),
		clients:  make(map[*Client]struct{}),
		done:     make(chan struct{}),
		metrics:  m,
		logger:   logger,
	}
}

// Run processes events until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.Close()
			}
			h.logger.Info("hub stopped", zap.Int("open_clients", len(h.clients)))
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.ConnectionOpened()
		case f := <-h.inbound:
			// frames from a client already removed are stale
			if _, ok := h.clients[f.client]; !ok {
				continue
			}
			if f.disconnect {
				h.drop(f.client)
				continue
			}
			if err := h.router.Route(ctx, f.client, f.msg); err != nil {
				h.logger.Warn("message dropped", append(f.client.fields(), zap.Error(err))...)
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	h.metrics.ConnectionClosed()
	if err := h.router.Disconnect(c); err != nil {
		h.logger.Warn("disconnect cleanup failed", append(c.fields(), zap.Error(err))...)
	}
	c.Close()
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) dispatch(c *Client, msg []byte) bool {
	select {
	case h.inbound <- frame{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.inbound <- frame{client: c, disconnect: true}:
	case <-h.done:
	}
}
