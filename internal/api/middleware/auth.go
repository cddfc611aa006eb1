package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AuthConfig holds basic auth credentials.
type AuthConfig struct {
	User         string
	PasswordHash string // bcrypt
	Realm        string
}

// BasicAuth rejects requests whose credentials do not match. The password is
// compared against a bcrypt hash so the plain text never has to be configured.
func BasicAuth(cfg AuthConfig) gin.HandlerFunc {
	realm := cfg.Realm
	if realm == "" {
		realm = "console"
	}
	challenge := `Basic realm="` + realm + `"`
	hash := []byte(cfg.PasswordHash)
	user := []byte(cfg.User)

	return func(c *gin.Context) {
		name, password, ok := c.Request.BasicAuth()
		if ok {
			userOK := subtle.ConstantTimeCompare([]byte(name), user) == 1
			passOK := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
			if userOK && passOK {
				c.Set(gin.AuthUserKey, name)
				c.Next()
				return
			}
		}

		c.Header("WWW-Authenticate", challenge)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "unauthorized",
		})
	}
}
