package util

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUID returns a random v4 identifier. It panics only when the
// system entropy source fails, which leaves the process unable to mint ids.
func GenerateUUID() string {
	newUUID, err := uuid.NewRandom()
	if err != nil {
		panic(fmt.Sprintf("failed to generate UUID: %v", err))
	}
	return newUUID.String()
}
