package delphi

import (
	"fmt"
	"net/http"
)

// ConfigError reports missing credentials. Every request fails with it until
// the client is configured.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("delphi: missing configuration %v", e.Missing)
}

// TransportError reports a network failure or a non-success HTTP status.
// Status is zero when no response was received.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("delphi %s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Body)
	case e.Status != 0:
		return fmt.Sprintf("delphi %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
	default:
		return fmt.Sprintf("delphi %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
