package descriptor

import (
	"fmt"
	"strings"
)

// ErrInvalidLocation is returned when a location is missing keys its
// backend needs, names an unknown backend, or cannot be parsed.
type ErrInvalidLocation struct {
	Location Location
	URI      string
	Reason   string
}

func (e *ErrInvalidLocation) Error() string {
	if e.Location == nil {
		return fmt.Sprintf("invalid location %q: %s", e.URI, e.Reason)
	}
	return fmt.Sprintf("invalid location %s: %s", e.Location, e.Reason)
}

// ErrFetchFailed is returned when downloading bundle content fails after all
// attempts.
type ErrFetchFailed struct {
	Descriptor   string
	AttachmentID int
	Attempts     int
	Err          error
}

func (e *ErrFetchFailed) Error() string {
	return fmt.Sprintf("failed to download attachment %d for %s after %d attempts: %v",
		e.AttachmentID, e.Descriptor, e.Attempts, e.Err)
}

func (e *ErrFetchFailed) Unwrap() error {
	return e.Err
}

// ErrManifestMissing is returned when a local bundle has no metadata file.
type ErrManifestMissing struct {
	Path string
}

func (e *ErrManifestMissing) Error() string {
	return fmt.Sprintf("metadata file '%s' missing", e.Path)
}

// ErrManifestInvalid is returned when the metadata file cannot be read or parsed.
type ErrManifestInvalid struct {
	Path string
	Err  error
}

func (e *ErrManifestInvalid) Error() string {
	return fmt.Sprintf("cannot load metadata file '%s': %v", e.Path, e.Err)
}

func (e *ErrManifestInvalid) Unwrap() error {
	return e.Err
}

// ErrUnsupportedConstraint is returned by backends that cannot filter
// versions by pattern.
type ErrUnsupportedConstraint struct {
	Descriptor string
	Pattern    string
}

func (e *ErrUnsupportedConstraint) Error() string {
	return fmt.Sprintf("%s does not support version constraint patterns (got %q)", e.Descriptor, e.Pattern)
}

// ErrRecordNotFound is returned when a latest-version lookup finds no
// matching remote record.
type ErrRecordNotFound struct {
	EntityType string
	Name       string
	ProjectID  int
}

func (e *ErrRecordNotFound) Error() string {
	return fmt.Sprintf("cannot find a %s named '%s' in project %d", e.EntityType, e.Name, e.ProjectID)
}

// ErrRecordShape is returned when a remote record exists but its
// attachment field is not an uploaded file.
type ErrRecordShape struct {
	EntityType string
	Name       string
	Field      string
	Value      any
}

func (e *ErrRecordShape) Error() string {
	return fmt.Sprintf("latest version of %s '%s' is not an uploaded file: %s=%v", e.EntityType, e.Name, e.Field, e.Value)
}

// ErrVersionNotFound is returned when no version matches a pattern.
type ErrVersionNotFound struct {
	Source    string
	Pattern   string
	Available []string
}

func (e *ErrVersionNotFound) Error() string {
	src := e.Source
	if src == "" {
		src = "bundle"
	}
	return fmt.Sprintf("%s does not have a version matching the pattern '%s'. Available versions are: %s",
		src, e.Pattern, strings.Join(e.Available, ", "))
}

// ErrInvalidPattern is returned for malformed version patterns.
type ErrInvalidPattern struct {
	Pattern string
	Reason  string
}

func (e *ErrInvalidPattern) Error() string {
	return fmt.Sprintf("cannot parse version pattern '%s': %s", e.Pattern, e.Reason)
}
