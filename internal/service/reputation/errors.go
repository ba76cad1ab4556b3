package reputation

import "errors"

// ErrNotFound is returned when the referenced domain does not exist.
var ErrNotFound = errors.New("domain not found")
