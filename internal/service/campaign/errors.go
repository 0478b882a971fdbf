package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	ErrNoPendingEmails   = errors.New("campaign has no approved unscheduled emails")
	ErrNotAllApproved    = errors.New("campaign has emails awaiting approval")

	// ErrConcurrentModification means a control operation's atomic update
	// touched fewer rows than expected because another operation raced it.
	// The service retries once automatically; if it persists, the boundary
	// surfaces it as "please retry".
	ErrConcurrentModification = errors.New("campaign modified concurrently")
)
