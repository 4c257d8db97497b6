package taskengine

import "github.com/google/uuid"

func uuidNullFrom(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
