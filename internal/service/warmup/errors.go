package warmup

import "errors"

// Sentinel errors for the warmup service layer.
var (
	ErrNotFound          = errors.New("campaign or day not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidParameters = errors.New("invalid parameters")
	ErrPlanExists        = errors.New("warmup plan already generated")
)
