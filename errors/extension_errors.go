package errors

import "fmt"

// ExtensionError aborts an extension pipeline stage and the overall flow. The
// recovery suggestion is aimed at operators and extension developers; the
// OAuth error code and description are what the client sees.
type ExtensionError struct {
	ExtensionID        string `json:"extension_id"`
	Code               string `json:"error"`
	Description        string `json:"error_description,omitempty"`
	RecoverySuggestion string `json:"recovery_suggestion,omitempty"`
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("extension %s: %s: %s", e.ExtensionID, e.Code, e.Description)
}

// NewExtensionError creates an ExtensionError with the given OAuth error code.
func NewExtensionError(extensionID, code, description, recovery string) *ExtensionError {
	return &ExtensionError{
		ExtensionID:        extensionID,
		Code:               code,
		Description:        description,
		RecoverySuggestion: recovery,
	}
}
