// Package validation checks identifiers that end up in filesystem paths.
package validation

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidID is returned for identifiers that could traverse outside
// their storage directory or collide with reserved names.
var ErrInvalidID = errors.New("invalid identifier")

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateSessionID ensures a session ID is safe to use as a file name.
func ValidateSessionID(id string) error {
	return validate("session ID", id)
}

// ValidateScopeName ensures a named scope key is safe to echo into paths and logs.
func ValidateScopeName(name string) error {
	return validate("scope name", name)
}

func validate(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidID, kind)
	}
	if len(id) > 128 {
		return fmt.Errorf("%w: %s exceeds 128 characters", ErrInvalidID, kind)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %s %q contains disallowed characters", ErrInvalidID, kind, id)
	}
	return nil
}
