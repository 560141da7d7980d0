package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(lessonID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New().String(),
		LessonID: lessonID,
		UserID:   uuid.New(),
		Role:     "student",
		send:     make(chan WSMessage, 8),
	}
}

func TestHubBroadcastToLesson(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	lessonID := uuid.New()
	otherLesson := uuid.New()

	a := newTestClient(lessonID)
	b := newTestClient(lessonID)
	c := newTestClient(otherLesson)
	hub.Register(a)
	hub.Register(b)
	hub.Register(c)

	hub.BroadcastToLesson(lessonID, EventLessonCompleted, map[string]string{"lesson_id": lessonID.String()})

	for _, cl := range []*Client{a, b} {
		select {
		case msg := <-cl.send:
			assert.Equal(t, EventLessonCompleted, msg.Event)
			var data map[string]string
			require.NoError(t, json.Unmarshal(msg.Data, &data))
			assert.Equal(t, lessonID.String(), data["lesson_id"])
		default:
			t.Fatalf("client %s did not receive the broadcast", cl.ID)
		}
	}

	select {
	case <-c.send:
		t.Fatal("client in another lesson room must not receive the broadcast")
	default:
	}
}

func TestHubAudienceCount(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	lessonID := uuid.New()

	a := newTestClient(lessonID)
	b := newTestClient(lessonID)
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.AudienceCount(lessonID))

	hub.Unregister(a)
	assert.Equal(t, 1, hub.AudienceCount(lessonID))

	hub.Unregister(b)
	assert.Equal(t, 0, hub.AudienceCount(lessonID))
}

func TestHubSendToClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	lessonID := uuid.New()

	a := newTestClient(lessonID)
	b := newTestClient(lessonID)
	hub.Register(a)
	hub.Register(b)

	hub.SendToClient(lessonID, a.ID, EventQuizResult, map[string]bool{"is_passing": true})

	select {
	case msg := <-a.send:
		assert.Equal(t, EventQuizResult, msg.Event)
	default:
		t.Fatal("target client did not receive the message")
	}
	select {
	case <-b.send:
		t.Fatal("other client must not receive a direct message")
	default:
	}
}
