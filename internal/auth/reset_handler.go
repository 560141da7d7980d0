package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursebay/backend/internal/models"
	"github.com/coursebay/backend/pkg/email"
	"github.com/coursebay/backend/pkg/queue"
	"github.com/coursebay/backend/pkg/response"
	"github.com/coursebay/backend/pkg/utils"
)

// genericResetMessage never reveals whether the email exists.
const genericResetMessage = "If an account exists for that email, a reset code has been sent."

// ForgotPasswordRequest is the body for POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ValidateResetCodeRequest is the body for POST /auth/validate-reset-code.
type ValidateResetCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6"`
}

// ResetPasswordRequest is the body for POST /auth/reset-password.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required,len=6"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// ResetUserSource is the slice of the user repository the reset flow needs.
type ResetUserSource interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// ResetStore persists reset codes.
type ResetStore interface {
	Create(ctx context.Context, rec *models.PasswordReset) error
	GetByEmailAndCode(ctx context.Context, email, code string) (*models.PasswordReset, error)
	MarkUsed(ctx context.Context, rec *models.PasswordReset) error
	PurgeByEmail(ctx context.Context, email string) error
}

// EmailEnqueuer queues outbound email jobs.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// ResetHandler handles the password reset flow.
type ResetHandler struct {
	userRepo  ResetUserSource
	resetRepo ResetStore
	jobQueue  EmailEnqueuer
	logger    *zap.Logger
}

// NewResetHandler creates a password reset handler.
func NewResetHandler(userRepo ResetUserSource, resetRepo ResetStore, jobQueue EmailEnqueuer, logger *zap.Logger) *ResetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResetHandler{userRepo: userRepo, resetRepo: resetRepo, jobQueue: jobQueue, logger: logger}
}

// Forgot handles POST /auth/forgot-password. Always answers with the generic
// message; internal failures are logged server-side only.
func (h *ResetHandler) Forgot(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || user == nil {
		response.OK(c, gin.H{"message": genericResetMessage})
		return
	}

	if err := h.resetRepo.PurgeByEmail(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("purge reset codes failed", zap.Error(err))
		response.OK(c, gin.H{"message": genericResetMessage})
		return
	}

	code, err := generateResetCode()
	if err != nil {
		h.logger.Error("generate reset code failed", zap.Error(err))
		response.OK(c, gin.H{"message": genericResetMessage})
		return
	}

	rec := &models.PasswordReset{
		Email:     req.Email,
		Code:      code,
		ExpiresAt: time.Now().Add(models.ResetCodeTTL),
	}
	if err := h.resetRepo.Create(c.Request.Context(), rec); err != nil {
		h.logger.Error("create reset code failed", zap.Error(err))
		response.OK(c, gin.H{"message": genericResetMessage})
		return
	}

	if err := h.jobQueue.EnqueueEmail(c.Request.Context(), queue.EmailPayload{
		EmailType:      "reset_code",
		UserID:         user.ID,
		RecipientEmail: req.Email,
		Subject:        "Your password reset code",
		BodyHTML:       email.ResetCodeBody(code, models.ResetCodeTTL),
	}); err != nil {
		h.logger.Error("enqueue reset email failed", zap.Error(err))
	}

	response.OK(c, gin.H{"message": genericResetMessage})
}

// ValidateCode handles POST /auth/validate-reset-code. Read-only: does not
// consume the code, so clients can check before submitting a new password.
func (h *ResetHandler) ValidateCode(c *gin.Context) {
	var req ValidateResetCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	rec, err := h.resetRepo.GetByEmailAndCode(c.Request.Context(), req.Email, req.Code)
	if err != nil || rec == nil || !rec.IsUsable(time.Now()) {
		response.BadRequest(c, "invalid or expired code")
		return
	}
	response.OK(c, gin.H{"valid": true})
}

// Reset handles POST /auth/reset-password.
func (h *ResetHandler) Reset(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	rec, err := h.resetRepo.GetByEmailAndCode(c.Request.Context(), req.Email, req.Code)
	if err != nil || rec == nil || !rec.IsUsable(time.Now()) {
		response.BadRequest(c, "invalid or expired code")
		return
	}

	user, err := h.userRepo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || user == nil {
		response.BadRequest(c, "invalid or expired code")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("hash password failed", zap.Error(err))
		response.Internal(c, "failed to reset password")
		return
	}
	if err := h.userRepo.UpdatePassword(c.Request.Context(), user.ID, hash); err != nil {
		h.logger.Error("update password failed", zap.Error(err))
		response.Internal(c, "failed to reset password")
		return
	}

	if err := h.resetRepo.MarkUsed(c.Request.Context(), rec); err != nil {
		h.logger.Error("mark reset code used failed", zap.Error(err))
	}
	// Stale codes for the address must never validate after a reset.
	if err := h.resetRepo.PurgeByEmail(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("purge reset codes failed", zap.Error(err))
	}

	response.OK(c, gin.H{"message": "password updated"})
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
