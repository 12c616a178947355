package pathcodec

import (
	"net/url"
	"strings"
)

// parsedData is the result of walking the encoded-data grammar from
// spec §6:
//   data := part ("/" part)*
//   part := "param" "/" key "=" value | url-fragment
type parsedData struct {
	Params       map[string]string
	RemainingURL []string // tokens after the last "param/k=v" pair
}

// parseEncodedData walks decoded left-to-right: whenever the current
// token is "param" and a successor exists, it's consumed as a key=value
// pair (URL-unescaping both sides); the first token that breaks this
// pattern, and everything after it, is the URL-segment tail.
func parseEncodedData(decoded string) parsedData {
	tokens := strings.Split(decoded, "/")
	params := make(map[string]string)

	i := 0
	for i < len(tokens) {
		if tokens[i] == "param" && i+1 < len(tokens) {
			key, value := splitKV(tokens[i+1])
			if key != "" {
				params[key] = value
			}
			i += 2
			continue
		}
		break
	}

	return parsedData{Params: params, RemainingURL: tokens[i:]}
}

func splitKV(token string) (string, string) {
	idx := strings.IndexByte(token, '=')
	if idx < 0 {
		k, _ := url.QueryUnescape(token)
		return k, ""
	}
	key, _ := url.QueryUnescape(token[:idx])
	value, _ := url.QueryUnescape(token[idx+1:])
	return key, value
}
