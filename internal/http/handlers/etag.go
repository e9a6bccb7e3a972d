package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// weakETag joins parts into W/"a:b:c".
func weakETag(parts ...any) string {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = fmt.Sprint(p)
	}
	return `W/"` + strings.Join(ss, ":") + `"`
}

// notModified sets the ETag header and, when If-None-Match carries it,
// answers 304 and reports true.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	for _, v := range strings.Split(c.GetHeader("If-None-Match"), ",") {
		if v = strings.TrimSpace(v); v == etag || v == "*" {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
