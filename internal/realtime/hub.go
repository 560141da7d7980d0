package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Event names broadcast into lesson rooms.
const (
	EventJoin                = "join"
	EventLeave               = "leave"
	EventAudienceCount       = "audience_count"
	EventVideoProgress       = "video_progress"
	EventLessonCompleted     = "lesson_completed"
	EventCourseProgress      = "course_progress"
	EventQuizResult          = "quiz_result"
	EventDiscussionMessage   = "discussion_message"
	EventInstructorBroadcast = "instructor_broadcast"
)

// Hub maintains lesson_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// lessonID -> map[clientID]*Client
	lessons  map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per lesson
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishLessonEvent(lessonID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to lesson channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeLesson(lessonID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		lessons:  make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a lesson room. Starts Redis subscription for this lesson if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.lessons[c.LessonID] == nil {
		h.lessons[c.LessonID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeLesson(c.LessonID, func(event string, payload []byte) {
				h.BroadcastToLesson(c.LessonID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.LessonID] = cancel
			}
		}
	}
	h.lessons[c.LessonID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined lesson", zap.String("client_id", c.ID), zap.String("lesson_id", c.LessonID.String()))
}

// Unregister removes a client from a lesson room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.lessons[c.LessonID]; ok {
		delete(m, c.ID)
		count = len(m)
		if count == 0 {
			delete(h.lessons, c.LessonID)
			if cancel, ok := h.subs[c.LessonID]; ok {
				cancel()
				delete(h.subs, c.LessonID)
			}
		}
	}
	h.mu.Unlock()
	if count > 0 {
		h.BroadcastToLesson(c.LessonID, EventLeave, map[string]interface{}{"user_id": c.UserID, "audience_count": count})
	}
	h.logger.Debug("client left lesson", zap.String("client_id", c.ID), zap.String("lesson_id", c.LessonID.String()))
}

// BroadcastToLesson sends a message to all clients in a lesson room (local only).
func (h *Hub) BroadcastToLesson(lessonID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.lessons[lessonID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToLessonAndPublish sends to local clients and publishes to Redis for other instances.
func (h *Hub) BroadcastToLessonAndPublish(lessonID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToLesson(lessonID, event, payload)
	if h.redis != nil {
		_ = h.redis.PublishLessonEvent(lessonID, event, data)
	}
}

// PublishToLessonOnly publishes to Redis only (no local broadcast). Used for events like
// discussion_message so that the Redis subscriber callback performs the broadcast once for
// all instances (including this one), avoiding duplicate delivery to local clients.
func (h *Hub) PublishToLessonOnly(lessonID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		_ = h.redis.PublishLessonEvent(lessonID, event, data)
		return
	}
	h.BroadcastToLesson(lessonID, event, payload)
}

// AudienceCount returns the number of connected clients in a lesson room.
func (h *Hub) AudienceCount(lessonID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lessons[lessonID])
}

// SendToClient sends a message to a single client in a lesson room.
func (h *Hub) SendToClient(lessonID uuid.UUID, clientID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	clients := h.lessons[lessonID]
	c, ok := clients[clientID]
	h.mu.RUnlock()
	if !ok || c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
