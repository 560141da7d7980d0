package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPasswordResetIsUsable(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := PasswordReset{ExpiresAt: now.Add(ResetCodeTTL)}
	assert.True(t, fresh.IsUsable(now))

	expired := PasswordReset{ExpiresAt: now.Add(-time.Second)}
	assert.False(t, expired.IsUsable(now))

	used := PasswordReset{ExpiresAt: now.Add(time.Hour), UsedAt: timePtr(now.Add(-time.Minute))}
	assert.False(t, used.IsUsable(now))

	atExpiry := PasswordReset{ExpiresAt: now}
	assert.False(t, atExpiry.IsUsable(now))
}
