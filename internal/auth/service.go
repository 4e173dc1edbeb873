package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Config holds auth configuration. An empty AdminPasswordHash disables
// authentication entirely.
type Config struct {
	AdminPasswordHash string `json:"admin_password_hash"`
	JWTSecret         string `json:"jwt_secret"`
	TokenDurationMins int    `json:"token_duration_mins"`
}

// Service validates the single admin password and issues tokens.
type Service struct {
	passwordHash string
	jwt          *JWTManager
}

// NewService creates an auth service. Returns nil when auth is disabled.
func NewService(cfg Config) *Service {
	if cfg.AdminPasswordHash == "" {
		return nil
	}
	duration := time.Duration(cfg.TokenDurationMins) * time.Minute
	return &Service{
		passwordHash: cfg.AdminPasswordHash,
		jwt:          NewJWTManager(cfg.JWTSecret, duration),
	}
}

// Login verifies the admin password and returns a signed token.
func (s *Service) Login(password string) (string, error) {
	if err := VerifyPassword(s.passwordHash, password); err != nil {
		return "", err
	}
	return s.jwt.GenerateToken()
}

// TokenDuration returns the issued token lifetime in seconds.
func (s *Service) TokenDuration() int64 {
	return s.jwt.TokenDuration()
}

// Middleware returns a gin middleware enforcing a valid bearer token. A nil
// Service yields a pass-through middleware.
func (s *Service) Middleware() gin.HandlerFunc {
	if s == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization header format",
			})
			return
		}

		claims, err := s.jwt.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		c.Set("role", claims.Role)
		c.Next()
	}
}
