package validation

import (
	"fmt"
	"strings"
)

// ValidateSDP performs a structural sanity check on a session description
// body. It does not parse the SDP; it only rejects payloads that cannot
// possibly be one.
func ValidateSDP(sdp string) error {
	if sdp == "" {
		return fmt.Errorf("SDP cannot be empty")
	}
	if len(sdp) < 2 || sdp[:2] != "v=" {
		return fmt.Errorf("invalid SDP format: must start with 'v='")
	}
	for _, field := range []string{"v=", "o=", "s=", "t="} {
		if !strings.Contains(sdp, field) {
			return fmt.Errorf("invalid SDP format: missing required field '%s'", field)
		}
	}
	return nil
}

// ValidateStreamID checks the opaque stream identifier format.
func ValidateStreamID(id string) error {
	if id == "" {
		return fmt.Errorf("stream_id cannot be empty")
	}
	if len(id) > 100 {
		return fmt.Errorf("stream_id must be at most 100 characters")
	}
	for _, r := range id {
		if !isIDRune(r) {
			return fmt.Errorf("stream_id contains invalid character %q", r)
		}
	}
	return nil
}

// ValidateViewerID checks the viewer identifier format.
func ValidateViewerID(id string) error {
	if id == "" {
		return fmt.Errorf("viewer_id cannot be empty")
	}
	if len(id) > 100 {
		return fmt.Errorf("viewer_id must be at most 100 characters")
	}
	for _, r := range id {
		if !isIDRune(r) {
			return fmt.Errorf("viewer_id contains invalid character %q", r)
		}
	}
	return nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
