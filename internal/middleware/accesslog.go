package middleware

import (
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

// AccessLog is gin's request logger without the query string. The stream
// route takes its bearer token as ?access_token=.
func AccessLog(out io.Writer) gin.HandlerFunc {
	if out == nil {
		out = gin.DefaultWriter
	}
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Output: out,
		Formatter: func(p gin.LogFormatterParams) string {
			path := p.Path
			if i := strings.IndexByte(path, '?'); i >= 0 {
				path = path[:i]
			}
			return fmt.Sprintf("level=info msg=request method=%s path=%s status=%d latency=%s client_ip=%s size=%d\n",
				p.Method, path, p.StatusCode, p.Latency, p.ClientIP, p.BodySize)
		},
	})
}
