package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"mukando/internal/models"
)

// ErrNotFound is returned when no payment matches the lookup key.
var ErrNotFound = errors.New("payment not found")

// ErrDuplicateReference is returned when a create collides with an existing
// reference. Callers regenerate the reference and retry; the existing row is
// never overwritten.
var ErrDuplicateReference = errors.New("payment reference already exists")

// PaymentRepository handles payment persistence. Requires the connection to
// be opened with gorm.Config{TranslateError: true} so duplicate-key errors
// are detectable across drivers.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment row.
func (r *PaymentRepository) Create(p *models.Payment) error {
	err := r.db.Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReference
	}
	return err
}

// FindByID returns a payment by primary id.
func (r *PaymentRepository) FindByID(id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindByReference returns a payment by its unique reference.
func (r *PaymentRepository) FindByReference(reference string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("reference = ?", reference).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateByID applies column updates to a payment unconditionally. Used for
// pre-confirmation bookkeeping by the single writer that created the row
// (redirect and poll handles); reconciliation writes go through
// RecordIfPending and FinalizeIfPending.
func (r *PaymentRepository) UpdateByID(id string, updates map[string]interface{}) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", id).Updates(updates).Error
}

// guardedPendingUpdate applies updates only while the row is still pending
// and, when externalID is given, its stored external payment id is unset or
// equal to it. Repeating the reconciler's guards in the WHERE clause is what
// makes racing confirmations safe: a writer working from a stale read matches
// zero rows instead of clobbering what a faster writer committed.
func (r *PaymentRepository) guardedPendingUpdate(id, externalID string, updates map[string]interface{}) (bool, error) {
	query := r.db.Model(&models.Payment{})
	if externalID == "" {
		query = query.Where("id = ? AND status = ?", id, models.StatusPending)
	} else {
		query = query.Where("id = ? AND status = ? AND (external_payment_id = '' OR external_payment_id = ?)",
			id, models.StatusPending, externalID)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordIfPending applies non-terminal bookkeeping from an observation. False
// with no error means the row moved underneath the caller, who reloads and
// re-judges.
func (r *PaymentRepository) RecordIfPending(id, externalID string, updates map[string]interface{}) (bool, error) {
	return r.guardedPendingUpdate(id, externalID, updates)
}

// FinalizeIfPending applies a terminal transition. False with no error means
// another writer finalized first or pinned a different external payment id.
func (r *PaymentRepository) FinalizeIfPending(id, externalID string, updates map[string]interface{}) (bool, error) {
	return r.guardedPendingUpdate(id, externalID, updates)
}

// FindStalePending returns pending payments with a poll handle that were
// created before the cutoff, oldest first. The sweep job uses this to
// recover payments whose webhook never arrived.
func (r *PaymentRepository) FindStalePending(createdBefore time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	var payments []models.Payment
	err := r.db.
		Where("status = ? AND poll_url <> '' AND created_at < ?", models.StatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// FindPendingBefore returns pending payments created before the cutoff,
// with or without a poll handle. The expiry job uses this so attempts whose
// initiation never completed still age out.
func (r *PaymentRepository) FindPendingBefore(createdBefore time.Time, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []models.Payment
	err := r.db.
		Where("status = ? AND created_at < ?", models.StatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// FindAll returns payments with pagination and search, newest first.
func (r *PaymentRepository) FindAll(limit, page int, query string) ([]models.Payment, int64, error) {
	var payments []models.Payment
	var total int64

	db := r.db.Model(&models.Payment{})

	if query != "" {
		search := "%" + query + "%"
		db = db.Where("reference LIKE ? OR external_payment_id LIKE ? OR status LIKE ?",
			search, search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	if err := db.Limit(limit).Offset(offset).Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
