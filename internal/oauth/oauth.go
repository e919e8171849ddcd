// Package oauth signs requests with OAuth 1.0a (RFC 5849) HMAC-SHA1, the
// external collaborator the core engine treats as a black box, but which the
// connection state machine still needs an interface to when an OAuthConfig
// is present, during request composition.
package oauth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the consumer and (optional) access credentials for signing.
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// clock and nonce are overridable for deterministic tests.
var (
	clock = func() time.Time { return time.Now() }
	nonce = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
)

// AuthorizationHeader builds the "Authorization: OAuth ..." header value for
// an HTTP request with the given method, absolute URL (scheme+host+path, no
// query) and query parameters.
func AuthorizationHeader(cfg Config, method, rawURL string, query map[string]string) string {
	ts := strconv.FormatInt(clock().Unix(), 10)
	n := nonce()

	params := map[string]string{
		"oauth_consumer_key":     cfg.ConsumerKey,
		"oauth_nonce":            n,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        ts,
		"oauth_version":          "1.0",
	}
	if cfg.AccessToken != "" {
		params["oauth_token"] = cfg.AccessToken
	}

	base, baseURL := signatureBaseString(method, rawURL, params, query)
	key := percentEncode(cfg.ConsumerSecret) + "&" + percentEncode(cfg.AccessSecret)
	sig := sign(key, base)
	params["oauth_signature"] = sig
	_ = baseURL

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%q", percentEncode(k), percentEncode(params[k]))
	}
	return b.String()
}

// signatureBaseString builds the RFC 5849 §3.4.1 base string:
// METHOD & percentEncode(baseURL) & percentEncode(normalizedParams).
func signatureBaseString(method, rawURL string, oauthParams, query map[string]string) (string, string) {
	u, _ := url.Parse(rawURL)
	baseURL := fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)

	all := make(map[string]string, len(oauthParams)+len(query))
	for k, v := range query {
		all[k] = v
	}
	for k, v := range oauthParams {
		all[k] = v
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+"="+percentEncode(all[k]))
	}
	normalized := strings.Join(parts, "&")

	base := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(normalized)
	return base, baseURL
}

func sign(key, base string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode implements RFC 3986 unreserved-char encoding as required by
// RFC 5849 (stricter than url.QueryEscape: space becomes %20, not '+', and
// '~' is left unescaped).
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
