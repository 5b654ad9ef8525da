package web

import (
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/config"
)

// token reports whether the caller can reach the LLM gateway. The gateway's
// token endpoint is asked with the browser's cookies; without a token the
// response carries the login URL to redirect to.
func (s *Server) token(c *gin.Context) {
	settings := s.deps.Settings
	if settings.LLM.Transport != config.TransportGateway || settings.Gateway.Token != "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": true})
		return
	}

	authenticated, err := s.checkGatewayToken(c.Request)
	if err != nil {
		klog.Warningf("gateway token check failed: %v", err)
	}
	if authenticated {
		c.JSON(http.StatusOK, gin.H{"authenticated": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": false,
		"loginURL":      loginURL(settings.Gateway.LoginURL, c.GetHeader("Referer")),
	})
}

func (s *Server) checkGatewayToken(r *http.Request) (bool, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.deps.Settings.Gateway.TokenURL, nil)
	if err != nil {
		return false, err
	}
	for _, cookie := range forwardedCookies(r) {
		req.AddCookie(cookie)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, err
	}
	if resp.StatusCode/100 != 2 {
		return false, nil
	}
	return gjson.GetBytes(body, "token").String() != "", nil
}

// forwardedCookies returns the request cookies minus the server's own.
func forwardedCookies(r *http.Request) []*http.Cookie {
	var out []*http.Cookie
	for _, cookie := range r.Cookies() {
		if cookie.Name == sessionCookie {
			continue
		}
		out = append(out, cookie)
	}
	return out
}

func loginURL(base, next string) string {
	if next == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("next", next)
	u.RawQuery = q.Encode()
	return u.String()
}
