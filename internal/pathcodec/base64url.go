// Package pathcodec implements component F: decoding the four inbound
// path encodings (enc/enc1/enc2/enc3/literal) into a target URL plus
// an overlay of allow-listed headers, per spec §4.F.
package pathcodec

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/streamrelay/proxy/internal/apperr"
)

// DecodeBase64URL reverses the encoding described in spec §6: URL
// percent-decode, translate the URL-safe alphabet back to standard
// base64 (- -> +, _ -> /), append '=' padding to a multiple of four,
// then base64-decode and interpret as UTF-8.
func DecodeBase64URL(encoded string) (string, error) {
	unescaped, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", apperr.BadRequest("failed to unescape path segment", err)
	}

	translated := strings.NewReplacer("-", "+", "_", "/").Replace(unescaped)
	if rem := len(translated) % 4; rem != 0 {
		translated += strings.Repeat("=", 4-rem)
	}

	decoded, err := base64.StdEncoding.DecodeString(translated)
	if err != nil {
		return "", apperr.BadRequest("failed to base64-decode path segment", err)
	}

	return string(decoded), nil
}

// EncodeBase64URL is the inverse of DecodeBase64URL: standard base64,
// translated to the URL-safe alphabet, with padding stripped (it's
// restored on decode by appending '=' up to a multiple of four).
func EncodeBase64URL(s string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(s))
	encoded = strings.TrimRight(encoded, "=")
	return strings.NewReplacer("+", "-", "/", "_").Replace(encoded)
}
