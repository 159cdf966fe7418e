package util

import "github.com/google/uuid"

// NewID returns a random identifier used for runs and requests.
func NewID() string { return uuid.NewString() }
