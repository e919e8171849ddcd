package worker

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/loadkit/loadkit/internal/oauth"
	"github.com/loadkit/loadkit/internal/urlset"
)

// composeRequest renders the full request as it goes on the wire: request
// line, headers, blank line, body. Headers the caller already supplied via
// cfg.Preset are not duplicated.
func composeRequest(cfg *Config, u *urlset.Url) []byte {
	var b strings.Builder

	method := cfg.Method
	if method == "" {
		method = "GET"
	}
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, u.PathQueryFragment)

	if !cfg.Preset.has(PresetHost) {
		fmt.Fprintf(&b, "Host: %s\r\n", u.HostHeader)
	}
	if !cfg.Preset.has(PresetUserAgent) {
		ua := cfg.UserAgent
		if ua == "" {
			ua = "loadkit/1.0"
		}
		fmt.Fprintf(&b, "User-Agent: %s\r\n", ua)
	}
	if !cfg.Preset.has(PresetConnection) {
		if cfg.KeepAlive {
			b.WriteString("Connection: keep-alive\r\n")
		} else {
			b.WriteString("Connection: close\r\n")
		}
	}
	if len(cfg.Body) > 0 {
		if !cfg.Preset.has(PresetContentType) {
			b.WriteString("Content-Type: application/x-www-form-urlencoded\r\n")
		}
		if !cfg.Preset.has(PresetContentLength) {
			fmt.Fprintf(&b, "Content-Length: %d\r\n", len(cfg.Body))
		}
	}
	if !cfg.Preset.has(PresetAuthorization) {
		if cfg.OAuth != nil {
			abs := fmt.Sprintf("%s://%s%s", u.Scheme, u.HostHeader, u.Path)
			query := parseQuery(u.RawQuery)
			fmt.Fprintf(&b, "Authorization: %s\r\n", oauth.AuthorizationHeader(*cfg.OAuth, method, abs, query))
		} else if cfg.BasicAuth != "" {
			fmt.Fprintf(&b, "Authorization: Basic %s\r\n", base64.StdEncoding.EncodeToString([]byte(cfg.BasicAuth)))
		}
	}
	for _, line := range cfg.HeaderLines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	if len(cfg.Body) > 0 {
		b.Write(cfg.Body)
	}

	return []byte(b.String())
}

func parseQuery(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
