package handlers

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventsHandler streams live access events to dashboard admins over SSE
type EventsHandler struct {
	clients        map[string]chan interface{}
	mu             sync.RWMutex
	allowedOrigins string
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(allowedOrigins string) *EventsHandler {
	return &EventsHandler{
		clients:        make(map[string]chan interface{}),
		allowedOrigins: allowedOrigins,
	}
}

// addClient safely adds a client to the map
func (eh *EventsHandler) addClient(id string, ch chan interface{}) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.clients[id] = ch
}

// removeClient safely removes a client from the map
func (eh *EventsHandler) removeClient(id string) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	delete(eh.clients, id)
}

// HandleStream holds an SSE connection open and forwards broadcast events.
// Auth is enforced by the admin middleware on the route.
func (eh *EventsHandler) HandleStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if eh.allowedOrigins != "" {
		c.Header("Access-Control-Allow-Origin", eh.allowedOrigins)
	}

	// Establish the connection immediately
	_, _ = c.Writer.WriteString(": connected\n\n")
	c.Writer.Flush()

	clientID := uuid.New().String()
	eventChan := make(chan interface{}, 10)
	eh.addClient(clientID, eventChan)
	defer eh.removeClient(clientID)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			log.Debug().Str("client_id", clientID).Msg("event stream disconnected")
			return
		case <-ticker.C:
			_, _ = c.Writer.WriteString(": heartbeat\n\n")
			c.Writer.Flush()
		case event := <-eventChan:
			if event == nil {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", data))
			c.Writer.Flush()
		}
	}
}

// BroadcastEvent forwards an event to all connected streams
func (eh *EventsHandler) BroadcastEvent(event interface{}) {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	for _, ch := range eh.clients {
		select {
		case ch <- event:
		default:
			log.Debug().Msg("event channel full, dropping event")
		}
	}
}
