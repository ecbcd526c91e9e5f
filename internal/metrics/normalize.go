package metrics

import "regexp"

// Route-normalization patterns, checked in order. Grounded on the intent of
// rezaabdurahman-Link/backend/shared-libs/metrics/middleware.go's
// normalizePath (collapse high-cardinality path segments before they reach
// a label), but expressed as the spec's exact regex rules instead of that
// file's per-service prefix switch, since this service has one route table.
var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
	ciSegment      = regexp.MustCompile(`^[0-9a-zA-Z]{6,20}$`)
	hasDigit       = regexp.MustCompile(`[0-9]`)
)

// NormalizePath replaces numeric ids with :id, UUIDs with :uuid, and other
// 6-20 character alphanumeric segments containing at least one digit with
// :ci, to bound the cardinality of the route label on http_requests_total /
// http_request_duration_seconds. Letter-only segments such as "recognition"
// are kept as route names.
func NormalizePath(path string) string {
	segments := splitPath(path)
	for i, seg := range segments {
		switch {
		case uuidSegment.MatchString(seg):
			segments[i] = ":uuid"
		case numericSegment.MatchString(seg):
			segments[i] = ":id"
		case ciSegment.MatchString(seg) && hasDigit.MatchString(seg):
			segments[i] = ":ci"
		}
	}
	return joinPath(segments)
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	return segments
}

func joinPath(segments []string) string {
	out := ""
	for _, s := range segments {
		out += "/" + s
	}
	if out == "" {
		return "/"
	}
	return out
}
