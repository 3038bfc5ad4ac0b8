package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new time-ordered identifier. Bids and outbox events sort
// by id in creation order. Falls back to a random id if the clock source fails.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
