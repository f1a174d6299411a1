package downgrade

import "strings"

const (
	sourceMarker    = "A*"
	sourceIDLength  = 32
	sourceMinLength = 32
)

// SourceID derives the short identifier used for switches, telemetry and the
// crash ledger. Network locators longer than 32 characters that contain the
// "A*" marker are cut to the 32-character window starting at the last marker;
// anything else is returned unchanged.
func SourceID(url string) string {
	if len(url) <= sourceMinLength {
		return url
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return url
	}
	idx := strings.LastIndex(url, sourceMarker)
	if idx == -1 {
		return url
	}
	return url[idx:min(idx+sourceIDLength, len(url))]
}
