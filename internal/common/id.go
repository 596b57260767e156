package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique id for one invocation of the runner
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewResultID generates a unique id for one scenario result
// Format: res_<uuid>
func NewResultID() string {
	return "res_" + uuid.New().String()
}

// NewSessionID generates a unique id for one browser session
// Format: ses_<uuid>
func NewSessionID() string {
	return "ses_" + uuid.New().String()
}
