package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"order_track/internal/apperr"
	"order_track/internal/auth"
	"order_track/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthOptions 账号服务参数。
type AuthOptions struct {
	MaxFailures int
	Lockout     time.Duration
	BcryptCost  int
	Logger      *zap.Logger
}

// AuthService 注册、登录与登录失败锁定。
type AuthService struct {
	db          *gorm.DB
	tokens      *auth.TokenIssuer
	maxFailures int
	lockout     time.Duration
	cost        int
	dummyHash   string
	log         *zap.Logger
	now         func() time.Time
}

func NewAuthService(db *gorm.DB, tokens *auth.TokenIssuer, opts AuthOptions) *AuthService {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	if opts.Lockout <= 0 {
		opts.Lockout = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	// 未知用户也做一次哈希比较，避免通过耗时判断用户名是否存在
	dummy, _ := auth.HashPassword("order-track-dummy", opts.BcryptCost)
	return &AuthService{
		db:          db,
		tokens:      tokens,
		maxFailures: opts.MaxFailures,
		lockout:     opts.Lockout,
		cost:        opts.BcryptCost,
		dummyHash:   dummy,
		log:         opts.Logger.Named("auth"),
		now:         time.Now,
	}
}

// Register 创建账号；用户名已存在返回 Conflict。
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 64 {
		return nil, apperr.New(apperr.InvalidInput, "username must be 3-64 characters")
	}
	if len(password) < 6 {
		return nil, apperr.New(apperr.InvalidInput, "password must be at least 6 characters")
	}

	hash, err := auth.HashPassword(password, s.cost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperr.New(apperr.InvalidInput, "password must be at most 72 bytes")
		}
		return nil, internal(err, "hash password")
	}

	db := s.db.WithContext(ctx)
	var exists int64
	if err := db.Model(&model.User{}).Where("username = ?", username).Count(&exists).Error; err != nil {
		return nil, internal(err, "register")
	}
	if exists > 0 {
		return nil, apperr.New(apperr.Conflict, "username already exists")
	}

	u := &model.User{Username: username, PasswordHash: hash}
	if err := db.Create(u).Error; err != nil {
		// 并发注册同名：唯一索引兜底
		if errorsLikeUnique(err) {
			return nil, apperr.New(apperr.Conflict, "username already exists")
		}
		return nil, internal(err, "register")
	}
	s.log.Info("user registered", zap.Uint("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login 校验口令并签发令牌。连续失败达到上限后锁定一段时间。
func (s *AuthService) Login(ctx context.Context, username, password string) (auth.Token, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return auth.Token{}, apperr.New(apperr.InvalidInput, "username and password are required")
	}

	db := s.db.WithContext(ctx)
	var u model.User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			auth.CheckPassword(s.dummyHash, password)
			return auth.Token{}, apperr.New(apperr.Unauthorized, "invalid credentials")
		}
		return auth.Token{}, internal(err, "login")
	}

	now := s.now()
	if u.IsLockedOut(now) {
		return auth.Token{}, apperr.New(apperr.Unauthorized, "account is locked, try again later")
	}

	if !auth.CheckPassword(u.PasswordHash, password) {
		if err := s.recordFailure(db, &u, now); err != nil {
			return auth.Token{}, internal(err, "login")
		}
		return auth.Token{}, apperr.New(apperr.Unauthorized, "invalid credentials")
	}

	if u.FailedLoginAttempts > 0 || u.LockoutEndTime != nil {
		err := db.Model(&model.User{}).Where("id = ?", u.ID).
			Updates(map[string]any{"failed_login_attempts": 0, "lockout_end_time": nil}).Error
		if err != nil {
			return auth.Token{}, internal(err, "login")
		}
	}

	tok, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return auth.Token{}, internal(err, "issue token")
	}
	s.log.Info("user logged in", zap.Uint("user_id", u.ID))
	return tok, nil
}

// recordFailure 原子累加失败次数；达到上限的那一次把计数清零并写入锁定截止时间。
// 两步都是条件 UPDATE，并发的错误口令不会丢失累加。
func (s *AuthService) recordFailure(db *gorm.DB, u *model.User, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.User{}).Where("id = ?", u.ID).
			Update("failed_login_attempts", gorm.Expr("failed_login_attempts + 1"))
		if res.Error != nil {
			return res.Error
		}

		until := now.Add(s.lockout)
		res = tx.Model(&model.User{}).
			Where("id = ? AND failed_login_attempts >= ?", u.ID, s.maxFailures).
			Updates(map[string]any{"failed_login_attempts": 0, "lockout_end_time": until})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			s.log.Warn("account locked", zap.Uint("user_id", u.ID), zap.Time("until", until))
		}
		return nil
	})
}
