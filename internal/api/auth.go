package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// loginDelay simulates the verification round trip the login screen
// shows a spinner for. It is bounded and applies to every attempt.
const loginDelay = 250 * time.Millisecond

const sessionTTL = 24 * time.Hour

type AuthHandler struct {
	Secret string
}

func NewAuthHandler(secret string) *AuthHandler {
	return &AuthHandler{Secret: secret}
}

type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

// Login gates the main view. The check is intentionally local: a
// non-empty identity and a password of at least 6 characters.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	time.Sleep(loginDelay)

	if strings.TrimSpace(req.Identity) == "" || req.Password == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identity verification failed."})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Security Code too short (min 6 chars)"})
		return
	}

	token, err := h.issueToken(req.Identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "identity": req.Identity})
}

func (h *AuthHandler) issueToken(identity string) (string, error) {
	claims := jwt.MapClaims{
		"sub": identity,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(sessionTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.Secret))
}

func (h *AuthHandler) parseToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("missing token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.Secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("invalid identity in token")
	}
	return sub, nil
}

// Middleware authenticates API requests via a Bearer token, or a token
// query parameter for the websocket endpoint.
func (h *AuthHandler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		identity, err := h.parseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("identity", identity)
		c.Next()
	}
}
