package store

import "fmt"

// MaxNameLength is the maximum allowed length for a Task, Subscription or
// ApiDebugConfig name. Both backends store names in TEXT columns, so the
// limit is enforced here only.
const MaxNameLength = 255

// ValidateName checks that an entity name is non-empty and does not
// exceed MaxNameLength.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name too long: %d chars (max %d)", ErrInvalidInput, len(name), MaxNameLength)
	}
	return nil
}
