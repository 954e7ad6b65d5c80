package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost bcrypt 成本；测试里用 bcrypt.MinCost 加速。
const DefaultCost = 12

// HashPassword 生成带盐哈希。
func HashPassword(password string, cost int) (string, error) {
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 校验明文与哈希是否匹配。
func CheckPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ErrPasswordTooLong bcrypt 只接受 72 字节以内的口令。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
