package common

import (
	"github.com/google/uuid"
)

// NewIntelligenceID generates a unique record ID with the "intel_" prefix
// Format: intel_<uuid>
func NewIntelligenceID() string {
	return "intel_" + uuid.New().String()
}
