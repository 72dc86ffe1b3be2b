package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mukando/internal/models"
	"mukando/internal/repository"
)

// Reconciliation errors. These are consistency rejections: the stored
// record is left untouched when any of them is returned.
var (
	ErrPaymentNotFound    = errors.New("payment not found for observation")
	ErrAmountMismatch     = errors.New("observed amount does not match stored payment")
	ErrExternalIDMismatch = errors.New("observed external payment id conflicts with stored value")
)

// Observation is a normalized view of what one confirmation channel (poll or
// webhook) saw at the gateway. Status has already been through
// paynow.MapStatus; no raw gateway vocabulary arrives here.
type Observation struct {
	Status        models.PaymentStatus
	ExternalID    string
	AmountCents   int64
	HasAmount     bool
	FailureReason string
	RawPayload    string
}

// Reconciler is the sole writer of payment status. Both the polling path and
// the webhook path funnel through Apply, which is what guarantees the two
// channels cannot produce divergent outcomes for the same payment.
type Reconciler struct {
	store  PaymentStore
	logger *zap.Logger
}

func NewReconciler(store PaymentStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Apply loads the payment identified by key (id or reference) and applies
// the observation under the idempotency and consistency guards. Replaying a
// terminal observation is a no-op that returns the existing record; losing a
// race to another writer returns whatever that writer committed.
func (r *Reconciler) Apply(key string, obs Observation) (*models.Payment, error) {
	p, err := r.load(key)
	if err != nil {
		return nil, err
	}

	// Terminal states are final. A second delivery of the same confirmation
	// must not re-stamp payment_date or failure_reason.
	if p.Status.Terminal() {
		return p, nil
	}

	if obs.HasAmount && obs.AmountCents != p.AmountCents {
		r.logger.Warn("Rejecting observation with mismatched amount",
			zap.String("payment_id", p.ID),
			zap.String("reference", p.Reference),
			zap.Int64("stored_cents", p.AmountCents),
			zap.Int64("observed_cents", obs.AmountCents))
		return nil, ErrAmountMismatch
	}
	if err := r.conflictingExternalID(p, obs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"gateway_response": obs.RawPayload,
		"updated_at":       now,
	}
	if obs.ExternalID != "" && p.ExternalPaymentID == "" {
		updates["external_payment_id"] = obs.ExternalID
	}

	// A pending observation carries nothing final; record what we learned
	// and leave the status alone. The store re-checks the guards in the
	// write itself, so a row finalized or pinned to a different external id
	// after the read above is left untouched.
	if !obs.Status.Terminal() {
		applied, err := r.store.RecordIfPending(p.ID, obs.ExternalID, updates)
		if err != nil {
			return nil, fmt.Errorf("update payment %s: %w", p.ID, err)
		}
		if applied {
			return r.store.FindByID(p.ID)
		}
		return r.rejudge(p.ID, obs)
	}

	updates["status"] = obs.Status
	switch obs.Status {
	case models.StatusPaid:
		updates["payment_date"] = now
	case models.StatusFailed:
		reason := obs.FailureReason
		if reason == "" {
			reason = "payment failed"
		}
		updates["failure_reason"] = reason
	}

	applied, err := r.store.FinalizeIfPending(p.ID, obs.ExternalID, updates)
	if err != nil {
		return nil, fmt.Errorf("finalize payment %s: %w", p.ID, err)
	}
	if !applied {
		cur, err := r.rejudge(p.ID, obs)
		if err != nil {
			return nil, err
		}
		// Another channel finalized first; its outcome stands.
		r.logger.Info("Observation lost finalize race, keeping earlier outcome",
			zap.String("payment_id", p.ID),
			zap.String("reference", p.Reference),
			zap.String("observed_status", string(obs.Status)))
		return cur, nil
	}
	return r.store.FindByID(p.ID)
}

// rejudge handles a guarded write that matched zero rows: reload the record
// and decide whether the observation lost a benign race or carries a
// conflicting external payment id.
func (r *Reconciler) rejudge(id string, obs Observation) (*models.Payment, error) {
	cur, err := r.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return cur, nil
	}
	if err := r.conflictingExternalID(cur, obs); err != nil {
		return nil, err
	}
	return cur, nil
}

func (r *Reconciler) conflictingExternalID(p *models.Payment, obs Observation) error {
	if obs.ExternalID == "" || p.ExternalPaymentID == "" || obs.ExternalID == p.ExternalPaymentID {
		return nil
	}
	r.logger.Warn("Rejecting observation with conflicting external payment id",
		zap.String("payment_id", p.ID),
		zap.String("reference", p.Reference),
		zap.String("stored", p.ExternalPaymentID),
		zap.String("observed", obs.ExternalID))
	return ErrExternalIDMismatch
}

func (r *Reconciler) load(key string) (*models.Payment, error) {
	p, err := r.store.FindByID(key)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	p, err = r.store.FindByReference(key)
	if errors.Is(err, repository.ErrNotFound) {
		// Never create a payment implicitly from a confirmation.
		return nil, ErrPaymentNotFound
	}
	return p, err
}
