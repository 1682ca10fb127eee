package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thereayou/marketchat/internal/logging"
	"github.com/thereayou/marketchat/pkg/auth"
)

const UserIDKey = "userID"

// UserProvisioner заводит пользователя при первом обращении: учётки живут во внешнем сервисе
type UserProvisioner interface {
	EnsureUser(id uuid.UUID, displayName string) error
}

type Authenticator struct {
	jwt       *auth.JWTManager
	blacklist Blacklist
	users     UserProvisioner
	logger    zerolog.Logger
}

func NewAuthenticator(jwtManager *auth.JWTManager, blacklist Blacklist, users UserProvisioner, logger zerolog.Logger) *Authenticator {
	if blacklist == nil {
		blacklist = NoBlacklist{}
	}
	return &Authenticator{
		jwt:       jwtManager,
		blacklist: blacklist,
		users:     users,
		logger:    logging.Component(logger, "auth"),
	}
}

// AuthMiddleware проверяет JWT токен из заголовка Authorization
func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		a.authenticate(c, token)
	}
}

// WSAuthMiddleware токен из ?token=, заголовок как запасной вариант
func (a *Authenticator) WSAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractToken(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		a.authenticate(c, token)
	}
}

func (a *Authenticator) authenticate(c *gin.Context, token string) {
	// Проверяем, не в черном списке ли токен
	revoked, err := a.blacklist.IsRevoked(c.Request.Context(), token)
	if err != nil {
		a.logger.Error().Err(err).Msg("blacklist lookup failed")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
		return
	}
	if revoked {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
		return
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	if a.users != nil {
		if err := a.users.EnsureUser(userID, claims.Name); err != nil {
			a.logger.Error().Err(err).Str(logging.FieldUserID, userID.String()).Msg("failed to provision user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
	}

	c.Set(UserIDKey, userID)
	c.Next()
}

// UserID достаёт id пользователя, выставленный middleware
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
