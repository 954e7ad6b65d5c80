package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"order_track/internal/apperr"
	"order_track/internal/auth"
	"order_track/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthService(t *testing.T) (*AuthService, *auth.TokenIssuer) {
	t.Helper()
	tokens := auth.NewTokenIssuer("0123456789abcdef-secret", "order-track", "clients", time.Hour)
	svc := NewAuthService(newTestDB(t), tokens, AuthOptions{
		MaxFailures: 3,
		Lockout:     time.Minute,
		BcryptCost:  bcrypt.MinCost,
	})
	return svc, tokens
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, tokens := newTestAuthService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)

	tok, err := svc.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	claims, err := tokens.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)
}

func TestAuthService_RegisterRejects(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "secret2")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = svc.Register(ctx, "al", "secret1")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
	_, err = svc.Register(ctx, "bobby", "123")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
	_, err = svc.Register(ctx, "bobby", strings.Repeat("p", 73))
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestAuthService_LoginFailures(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "nobody", "secret1")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	_, err = svc.Login(ctx, "", "")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestAuthService_LockoutAfterRepeatedFailures(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	now := time.Now()
	svc.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_, err = svc.Login(ctx, "alice", "wrong")
		require.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	}

	// 已锁定：正确口令也拒绝
	_, err = svc.Login(ctx, "alice", "secret1")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	assert.Contains(t, apperr.Message(err), "locked")

	// 锁定期过后恢复，并清零计数
	now = now.Add(2 * time.Minute)
	_, err = svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	var u model.User
	require.NoError(t, svc.db.Where("username = ?", "alice").First(&u).Error)
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.LockoutEndTime)
}

func TestAuthService_ConcurrentFailuresStillLock(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		name := fmt.Sprintf("user-%d", round)
		_, err := svc.Register(ctx, name, "secret1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < svc.maxFailures; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Login(ctx, name, "wrong-pass")
				assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
			}()
		}
		wg.Wait()

		var u model.User
		require.NoError(t, svc.db.Where("username = ?", name).First(&u).Error)
		require.NotNil(t, u.LockoutEndTime, "round %d: attempts=%d", round, u.FailedLoginAttempts)

		_, err = svc.Login(ctx, name, "secret1")
		assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
		assert.Contains(t, apperr.Message(err), "locked")
	}
}
