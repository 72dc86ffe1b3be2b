package service

import (
	"time"

	"mukando/internal/models"
)

// PaymentStore is the persistence surface the service layer needs.
// *repository.PaymentRepository satisfies it in production; tests use an
// in-memory fake. Implementations must return repository.ErrNotFound and
// repository.ErrDuplicateReference for the corresponding conditions.
// RecordIfPending and FinalizeIfPending must each be an atomic guarded
// read-modify-write per payment id: apply only while the row is pending and
// its external payment id is unset or equal to externalID, reporting false
// otherwise.
type PaymentStore interface {
	Create(p *models.Payment) error
	FindByID(id string) (*models.Payment, error)
	FindByReference(reference string) (*models.Payment, error)
	UpdateByID(id string, updates map[string]interface{}) error
	RecordIfPending(id, externalID string, updates map[string]interface{}) (bool, error)
	FinalizeIfPending(id, externalID string, updates map[string]interface{}) (bool, error)
	FindStalePending(createdBefore time.Time, limit int) ([]models.Payment, error)
	FindPendingBefore(createdBefore time.Time, limit int) ([]models.Payment, error)
}
