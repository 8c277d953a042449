package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/damione1/collab-notes/internal/config"
)

var (
	ErrInvalidRoomID     = errors.New("room ID is required")
	ErrInvalidDocumentID = errors.New("invalid document ID")
	ErrContentTooLarge   = errors.New("content too large")
)

var (
	// PocketBase ID regex - 15 character alphanumeric
	pocketbaseIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]{15}$`)
	uuidRegex         = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ValidateRoomID trims and checks a client supplied room identifier.
// Room IDs are opaque, so only emptiness, length and control characters are
// rejected.
func ValidateRoomID(roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", ErrInvalidRoomID
	}
	if utf8.RuneCountInString(roomID) > config.MaxRoomIDLength {
		return "", fmt.Errorf("%w: too long (max %d characters)", ErrInvalidRoomID, config.MaxRoomIDLength)
	}
	for _, r := range roomID {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: contains control characters", ErrInvalidRoomID)
		}
	}
	return roomID, nil
}

// ValidateDocumentID accepts PocketBase record IDs and UUIDs.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}

	if pocketbaseIDRegex.MatchString(id) {
		return nil
	}

	if uuidRegex.MatchString(strings.ToLower(id)) {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDocumentID, err)
		}
		return nil
	}

	return fmt.Errorf("%w: expected 15-character PocketBase ID or UUID", ErrInvalidDocumentID)
}

// SanitizeDisplayName trims the name, drops control characters and caps its
// length. An empty result means the caller should use the anonymous label.
func SanitizeDisplayName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if utf8.RuneCountInString(name) > config.MaxDisplayNameLength {
		name = strings.TrimSpace(string([]rune(name)[:config.MaxDisplayNameLength]))
	}
	return name
}

// ValidateContent enforces the maximum document size.
func ValidateContent(content string) error {
	if len(content) > config.MaxContentLength {
		return fmt.Errorf("%w (max %d bytes)", ErrContentTooLarge, config.MaxContentLength)
	}
	return nil
}

// SanitizeErrorMessage removes sensitive information from error messages
// Returns a generic user-friendly error message
func SanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())

	sensitivePatterns := []string{
		"sql",
		"database",
		"record",
		"collection",
		"pocketbase",
		"badger",
		"constraint",
		"unique",
		"duplicate key",
		"no rows",
		"transaction",
	}

	for _, pattern := range sensitivePatterns {
		if strings.Contains(errStr, pattern) {
			return "An error occurred while processing your request"
		}
	}

	return err.Error()
}
