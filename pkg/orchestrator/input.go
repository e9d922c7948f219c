package orchestrator

import (
	"fmt"
	"strings"
)

// AcceptedPrefixes are the link shapes a download can start from.
var AcceptedPrefixes = []string{
	"https://www.youtube.com/watch?v=",
	"https://youtube.com/watch?v=",
}

// InputReason says why user input was rejected.
type InputReason string

const (
	ReasonInvalidLink   InputReason = "invalid_link"
	ReasonNoDestination InputReason = "no_destination"
)

// InputError rejects malformed input before any work starts.
type InputError struct {
	Reason InputReason
	Input  string
}

func (e *InputError) Error() string {
	switch e.Reason {
	case ReasonNoDestination:
		return "no destination drive selected"
	case ReasonInvalidLink:
		if e.Input == "" {
			return "link is empty"
		}
		return fmt.Sprintf("unsupported link %q", e.Input)
	default:
		return string(e.Reason)
	}
}

// ValidateLink accepts non-empty text starting with one of
// AcceptedPrefixes.
func ValidateLink(link string) error {
	if link != "" {
		for _, prefix := range AcceptedPrefixes {
			if strings.HasPrefix(link, prefix) {
				return nil
			}
		}
	}
	return &InputError{Reason: ReasonInvalidLink, Input: link}
}
