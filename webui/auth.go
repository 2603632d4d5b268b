package webui

import (
	"github.com/gin-gonic/gin"
)

// authRequired schützt die API mit Basic-Auth, sobald Benutzer konfiguriert sind.
func authRequired(users map[string]string) gin.HandlerFunc {
	if len(users) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return gin.BasicAuth(gin.Accounts(users))
}
