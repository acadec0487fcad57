package models

import "github.com/google/uuid"

// ensureID assigns a random UUID when the caller left the primary key empty.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
