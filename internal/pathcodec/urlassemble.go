package pathcodec

import (
	"regexp"
	"strings"
)

var schemeRe = regexp.MustCompile(`https?://`)

// AssembleURL joins segments and normalises the result into an
// absolute URL, per spec §4.F step "URL assembly":
//  1. join with "/"
//  2. slice from the first https?:// occurrence if present
//  3. normalise duplicated schemes, protocol-relative and
//     single-slash forms, or prefix https:// if none is present
func AssembleURL(segments []string) string {
	joined := strings.Join(segments, "/")

	if loc := schemeRe.FindStringIndex(joined); loc != nil {
		joined = joined[loc[0]:]
	}

	return normaliseURL(joined)
}

func normaliseURL(raw string) string {
	// collapse a duplicated scheme prefix, e.g. "https://http://host" -> "https://host"
	for {
		if m := schemeRe.FindStringIndex(raw); m != nil && m[0] == 0 {
			rest := raw[m[1]:]
			if m2 := schemeRe.FindStringIndex(rest); m2 != nil && m2[0] == 0 {
				raw = raw[:m[1]] + rest[m2[1]:]
				continue
			}
		}
		break
	}

	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "https:/") && !strings.HasPrefix(raw, "https://"):
		return "https://" + strings.TrimPrefix(raw, "https:/")
	case strings.HasPrefix(raw, "http:/") && !strings.HasPrefix(raw, "http://"):
		return "http://" + strings.TrimPrefix(raw, "http:/")
	case strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://"):
		return raw
	default:
		return "https://" + raw
	}
}

// MergeQuery concatenates an inbound raw query string onto targetURL's
// own query, per spec §4.F step 4: "&"-joined if one already exists.
func MergeQuery(targetURL, inboundRawQuery string) string {
	if inboundRawQuery == "" {
		return targetURL
	}
	if strings.Contains(targetURL, "?") {
		return targetURL + "&" + inboundRawQuery
	}
	return targetURL + "?" + inboundRawQuery
}
