package reviews

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// callbackPrefix marks current-format review callbacks. The legacy
	// report prefix is still accepted at parse time; both map onto the same
	// state machine.
	callbackPrefix     = "rev"
	legacyReportPrefix = "rpt"
	callbackPartsCount = 3
)

var ErrMalformedCallback = errors.New("malformed review callback")

// FormatCallback builds the opaque payload baked into an inline keyboard
// button: "rev:<context id>:<action code>".
func FormatCallback(contextID string, actionCode int) string {
	return fmt.Sprintf("%s:%s:%d", callbackPrefix, contextID, actionCode)
}

// ParseCallback extracts the context id and raw action code. The code is only
// range-validated later, once the case kind selects the action enum.
func ParseCallback(data string) (string, int, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != callbackPartsCount {
		return "", 0, ErrMalformedCallback
	}
	if parts[0] != callbackPrefix && parts[0] != legacyReportPrefix {
		return "", 0, ErrMalformedCallback
	}

	contextID := strings.TrimSpace(parts[1])
	if contextID == "" {
		return "", 0, ErrMalformedCallback
	}

	code, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, ErrMalformedCallback
	}

	return contextID, code, nil
}

// IsReviewCallback reports whether a raw callback payload belongs to the
// review router at all.
func IsReviewCallback(data string) bool {
	return strings.HasPrefix(data, callbackPrefix+":") || strings.HasPrefix(data, legacyReportPrefix+":")
}
