package model

import "time"

// User 登录账号；密码只保存 bcrypt 哈希。
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// 连续失败计数与锁定截止时间
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockoutEndTime      *time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

// IsLockedOut 判断 now 时刻账号是否处于锁定期。
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEndTime != nil && now.Before(*u.LockoutEndTime)
}
