package streamer

import (
	"strconv"
	"strings"

	"github.com/streamrelay/proxy/internal/core/domain"
)

// ParseRange interprets a client's "Range: bytes=..." header against a
// (possibly unknown, contentLength<=0) upstream size, clamping the span
// to maxRangeSize bytes per spec §4.G step 2. Only the single-range
// "bytes=start-end" / "bytes=start-" / "bytes=-suffix" forms are
// supported; anything else is treated as "no range requested".
func ParseRange(headerVal string, contentLength, maxRangeSize int64) (domain.ParsedRange, bool) {
	if headerVal == "" {
		return domain.ParsedRange{}, false
	}
	spec, ok := strings.CutPrefix(headerVal, "bytes=")
	if !ok {
		return domain.ParsedRange{}, false
	}
	if strings.Contains(spec, ",") {
		spec = strings.SplitN(spec, ",", 2)[0]
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return domain.ParsedRange{}, false
	}

	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	var start, end int64
	known := contentLength > 0

	switch {
	case startStr == "" && endStr != "":
		// suffix range: last N bytes
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return domain.ParsedRange{}, false
		}
		if !known {
			return domain.ParsedRange{Start: 0, End: 0, RangeMode: true}, true
		}
		start = contentLength - suffix
		if start < 0 {
			start = 0
		}
		end = contentLength - 1
	case startStr != "" && endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return domain.ParsedRange{}, false
		}
		start = s
		if known {
			end = contentLength - 1
		} else {
			end = start + maxRangeSize - 1
		}
	case startStr != "" && endStr != "":
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s {
			return domain.ParsedRange{}, false
		}
		start, end = s, e
	default:
		return domain.ParsedRange{}, false
	}

	if known && end >= contentLength {
		end = contentLength - 1
	}
	if maxRangeSize > 0 && end-start+1 > maxRangeSize {
		end = start + maxRangeSize - 1
	}
	if end < start {
		end = start
	}

	return domain.ParsedRange{Start: start, End: end, RangeMode: true}, true
}
