package middleware

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/plotwise/plotwise-backend/internal/platform/ctxutil"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

// CallerAuth authenticates the agent/UI collaborator and attaches caller
// identity to the request context. Tokens are HS256 JWTs minted by the
// upstream auth service: `sub` is the caller id, `sid` the conversation
// session. Without AUTH_JWT_SECRET the middleware runs in dev mode and
// trusts the X-Caller-Id / X-Session-Id headers.
type CallerAuth struct {
	log    *logger.Logger
	secret []byte
}

func NewCallerAuth(log *logger.Logger) *CallerAuth {
	ca := &CallerAuth{log: log.With("Middleware", "CallerAuth")}
	if secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")); secret != "" {
		ca.secret = []byte(secret)
	} else {
		ca.log.Warn("AUTH_JWT_SECRET unset; caller identity taken from headers (dev mode)")
	}
	return ca
}

func (ca *CallerAuth) RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, sessionID, err := ca.identify(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		ctx := ctxutil.WithCallerData(c.Request.Context(), &ctxutil.CallerData{
			CallerID:  callerID,
			SessionID: sessionID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (ca *CallerAuth) identify(c *gin.Context) (string, string, error) {
	if ca.secret == nil {
		callerID := strings.TrimSpace(c.GetHeader("X-Caller-Id"))
		if callerID == "" {
			return "", "", fmt.Errorf("missing X-Caller-Id header")
		}
		return callerID, strings.TrimSpace(c.GetHeader("X-Session-Id")), nil
	}

	tokenString := extractToken(c)
	if tokenString == "" {
		return "", "", fmt.Errorf("missing or invalid token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ca.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	callerID, _ := claims["sub"].(string)
	if strings.TrimSpace(callerID) == "" {
		return "", "", fmt.Errorf("token missing subject")
	}
	sessionID, _ := claims["sid"].(string)
	return callerID, sessionID, nil
}

func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
