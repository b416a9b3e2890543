package model

import (
	"time"

	"github.com/pedronora/internum-api/internal/errs"
)

// AuditFields carries creation, update and soft-deletion provenance.
// Every persisted entity embeds it by value.
type AuditFields struct {
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	CreatedBy *int       `json:"createdBy,omitempty" db:"created_by"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty" db:"updated_at"`
	UpdatedBy *int       `json:"updatedBy,omitempty" db:"updated_by"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
	DeletedBy *int       `json:"deletedBy,omitempty" db:"deleted_by"`
}

// StampCreated is called exactly once, at entity construction.
func (a *AuditFields) StampCreated(actorID int, now time.Time) {
	a.CreatedAt = now
	a.CreatedBy = &actorID
}

// StampUpdated may be called repeatedly; the last call wins.
func (a *AuditFields) StampUpdated(actorID int, now time.Time) {
	a.UpdatedAt = &now
	a.UpdatedBy = &actorID
}

// SoftDelete marks the entity deleted without removing the row, so loan
// history stays navigable after a book or user is deactivated.
func (a *AuditFields) SoftDelete(actorID int, now time.Time) error {
	if a.DeletedAt != nil {
		return errs.ErrAlreadyDeleted
	}
	a.DeletedAt = &now
	a.DeletedBy = &actorID
	return nil
}

func (a *AuditFields) Deleted() bool {
	return a.DeletedAt != nil
}
