package domain

import "github.com/google/uuid"

// NewID generates a UUIDv7 string for registry-owned entities such as audit entries.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
