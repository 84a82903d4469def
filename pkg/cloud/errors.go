package cloud

import (
	"fmt"
	"strings"
)

// AuthError means the cloud rejected our credentials. Fatal for the run;
// never retried.
type AuthError struct {
	Status  int
	Message string
}

func (e AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.Status, e.Message)
}

// APIError is a non-success response from the cloud, either a bad HTTP
// status or a non-zero vendor errno.
type APIError struct {
	Endpoint string
	Status   int
	Errno    int
	Message  string
}

func (e APIError) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("%s returned errno %d: %s", e.Endpoint, e.Errno, e.Message)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Status, e.Message)
}

// NotFoundError means no site, logger or device matched the selector.
type NotFoundError struct {
	Kind     string
	Selector string
}

func (e NotFoundError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("no %s found", e.Kind)
	}
	return fmt.Sprintf("no %s matching %q", e.Kind, e.Selector)
}

// AmbiguousError means more than one candidate matched and no selector
// disambiguates. Candidates lets the caller present a pick list.
type AmbiguousError struct {
	Kind       string
	Selector   string
	Candidates []string
}

func (e AmbiguousError) Error() string {
	return fmt.Sprintf("multiple %ss match %q, candidates: %s",
		e.Kind, e.Selector, strings.Join(e.Candidates, ", "))
}
