package router

import (
	"order_track/internal/service"

	"github.com/gin-gonic/gin"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func register(s *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		u, err := s.Register(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"id": u.ID, "username": u.Username})
	}
}

// login 成功返回 {token, expiration}。
func login(s *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		tok, err := s.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, tok)
	}
}
