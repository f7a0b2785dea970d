package config

import "fmt"

// ConfigurationError marks a startup failure that leaves the worker unable
// to establish its own identity or locate its collaborators: unreadable
// config, missing own seal, absent authority key. It is fatal by contract:
// the worker must exit instead of serving requests in an inconsistent
// identity state.
type ConfigurationError struct {
	// Stage names the startup step that failed ("load config",
	// "read own seal", "load authority key").
	Stage string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Stage, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
