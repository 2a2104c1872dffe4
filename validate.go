package stowage

import "regexp"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateUser checks signup params and returns a *ValidationError listing
// every failure, or nil when the params are acceptable. Email is optional;
// backends that require extra fields append to the same failure list.
func ValidateUser(p Params) error {
	var failures []string

	if len(p.Username) < 2 {
		failures = append(failures, "username must be at least 2 characters long")
	}
	if p.Username != "" && !usernamePattern.MatchString(p.Username) {
		failures = append(failures, "username may only contain letters, numbers, dots, dashes and underscores")
	}
	if p.Password == "" {
		failures = append(failures, "password must not be blank")
	}

	if len(failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: failures}
}
