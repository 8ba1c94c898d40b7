// Package realtime pushes token status changes to websocket clients
// watching a token table.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// TokenEvent is the message sent for every committed token transition.
type TokenEvent struct {
	Type    string        `json:"type"`
	TableID uuid.UUID     `json:"table_id"`
	Number  int           `json:"number"`
	Status  tokens.Status `json:"status"`
	At      time.Time     `json:"at"`
}

const sendBuffer = 16

// Client is one subscriber. Send is closed when the hub drops it.
type Client struct {
	TableID uuid.UUID
	Send    chan []byte
	once    sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Send) })
}

// Hub fans token events out to the subscribers of each table.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	logger  *logging.Logger
	now     func() time.Time
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger.WithComponent("realtime"),
		now:     time.Now,
	}
}

func (h *Hub) Subscribe(tableID uuid.UUID) *Client {
	c := &Client{TableID: tableID, Send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[tableID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[tableID] = set
	}
	set[c] = struct{}{}
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

func (h *Hub) remove(c *Client) {
	if set, ok := h.clients[c.TableID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.TableID)
		}
	}
	c.close()
}

// Subscribers reports how many clients watch tableID.
func (h *Hub) Subscribers(tableID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tableID])
}

// PublishToken broadcasts a transition. Clients whose buffer is full are
// dropped.
func (h *Hub) PublishToken(tableID uuid.UUID, number int, status tokens.Status) {
	payload, err := json.Marshal(TokenEvent{Type: "token", TableID: tableID, Number: number, Status: status, At: h.now().UTC()})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[tableID] {
		select {
		case c.Send <- payload:
		default:
			h.logger.Warn("dropping slow subscriber", "token_table_id", tableID)
			h.remove(c)
		}
	}
}
