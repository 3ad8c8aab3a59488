package incidents

import "errors"

// Service errors.
var (
	ErrValidation         = errors.New("validation failed")
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPreconditionFailed = errors.New("rca and resolution are required to close an incident")
	ErrInvalidState       = errors.New("rca and resolution can only be edited while incident is in progress")
)
