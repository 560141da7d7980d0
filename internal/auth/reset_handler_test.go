package auth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/queue"
)

// mockUserSource is a mock implementation of ResetUserSource.
type mockUserSource struct {
	getByEmailFn func(ctx context.Context, email string) (*models.User, error)
	passwords    map[uuid.UUID]string
}

func (m *mockUserSource) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, errors.New("user not found")
}

func (m *mockUserSource) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	if m.passwords == nil {
		m.passwords = make(map[uuid.UUID]string)
	}
	m.passwords[userID] = passwordHash
	return nil
}

// memResetStore is an in-memory ResetStore.
type memResetStore struct {
	codes []models.PasswordReset
}

func (s *memResetStore) Create(ctx context.Context, rec *models.PasswordReset) error {
	rec.ID = uuid.New()
	s.codes = append(s.codes, *rec)
	return nil
}

func (s *memResetStore) GetByEmailAndCode(ctx context.Context, email, code string) (*models.PasswordReset, error) {
	for i := range s.codes {
		if s.codes[i].Email == email && s.codes[i].Code == code {
			rec := s.codes[i]
			return &rec, nil
		}
	}
	return nil, errors.New("reset code not found")
}

func (s *memResetStore) MarkUsed(ctx context.Context, rec *models.PasswordReset) error {
	for i := range s.codes {
		if s.codes[i].ID == rec.ID {
			used := s.codes[i].ExpiresAt
			s.codes[i].UsedAt = &used
		}
	}
	return nil
}

func (s *memResetStore) PurgeByEmail(ctx context.Context, email string) error {
	kept := s.codes[:0]
	for _, rec := range s.codes {
		if rec.Email != email {
			kept = append(kept, rec)
		}
	}
	s.codes = kept
	return nil
}

// mockEmailQueue is a mock implementation of EmailEnqueuer.
type mockEmailQueue struct {
	sent []queue.EmailPayload
}

func (m *mockEmailQueue) EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error {
	m.sent = append(m.sent, payload)
	return nil
}

func newResetTestRouter(users ResetUserSource, store ResetStore, mq EmailEnqueuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewResetHandler(users, store, mq, nil)
	router := gin.New()
	router.POST("/auth/forgot-password", h.Forgot)
	router.POST("/auth/validate-reset-code", h.ValidateCode)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestForgotPasswordSecondCodeInvalidatesFirst(t *testing.T) {
	userID := uuid.New()
	users := &mockUserSource{
		getByEmailFn: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: userID, Email: email}, nil
		},
	}
	store := &memResetStore{}
	mq := &mockEmailQueue{}
	router := newResetTestRouter(users, store, mq)

	w := postJSON(t, router, "/auth/forgot-password", `{"email":"learner@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.codes, 1)
	firstCode := store.codes[0].Code

	w = postJSON(t, router, "/auth/forgot-password", `{"email":"learner@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// At most one live code per address: the second issuance replaces the first.
	require.Len(t, store.codes, 1)
	currentCode := store.codes[0].Code
	assert.Len(t, mq.sent, 2)

	w = postJSON(t, router, "/auth/validate-reset-code",
		`{"email":"learner@example.com","code":"`+currentCode+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	if firstCode != currentCode {
		w = postJSON(t, router, "/auth/validate-reset-code",
			`{"email":"learner@example.com","code":"`+firstCode+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, "a superseded code must no longer validate")
	}
}

func TestForgotPasswordUnknownEmailCreatesNothing(t *testing.T) {
	store := &memResetStore{}
	mq := &mockEmailQueue{}
	router := newResetTestRouter(&mockUserSource{}, store, mq)

	w := postJSON(t, router, "/auth/forgot-password", `{"email":"ghost@example.com"}`)

	// Same generic answer as the happy path, but nothing is persisted or sent.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), genericResetMessage)
	assert.Empty(t, store.codes)
	assert.Empty(t, mq.sent)
}

func TestGenerateResetCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateResetCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code must be digits only: %q", code)
		}
		seen[code] = true
	}
	// 100 draws from a million-value space colliding down to a handful
	// would mean a broken generator.
	assert.Greater(t, len(seen), 90)
}
