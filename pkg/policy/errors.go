package policy

import "fmt"

// EvaluationError reports that a single policy module failed to
// evaluate. The engine never surfaces it to callers; it converts the
// failure into a synthetic BLOCK result so a crashing policy cannot
// silently allow traffic.
type EvaluationError struct {
	// PolicyName is the module that failed.
	PolicyName string

	// Cause is the underlying failure.
	Cause error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("policy %q evaluation failed: %v", e.PolicyName, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// DuplicateNameError reports a registration under a name that is
// already taken.
type DuplicateNameError struct {
	Name string
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("policy %q is already registered", e.Name)
}

// InvalidNameError reports registration under an empty or
// whitespace-only name.
type InvalidNameError struct {
	Name string
}

// Error implements the error interface.
func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid policy name %q: name must be non-empty", e.Name)
}

// NotRegisteredError reports an operation on a name with no
// registered module.
type NotRegisteredError struct {
	Name string
}

// Error implements the error interface.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("policy %q is not registered", e.Name)
}

// InvalidConfigError reports a malformed entry in the policy
// configuration document.
type InvalidConfigError struct {
	// Index is the position of the bad entry in the policies list.
	Index int

	// Field is the missing or malformed field.
	Field string

	// Message describes what is wrong.
	Message string
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid policy configuration at index %d, field %q: %s",
		e.Index, e.Field, e.Message)
}

// ConfigureError reports that a module rejected its option bag
// during engine configuration.
type ConfigureError struct {
	PolicyName string
	Cause      error
}

// Error implements the error interface.
func (e *ConfigureError) Error() string {
	return fmt.Sprintf("policy %q rejected its configuration: %v", e.PolicyName, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ConfigureError) Unwrap() error {
	return e.Cause
}
