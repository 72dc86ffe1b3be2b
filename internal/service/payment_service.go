package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mukando/internal/models"
	"mukando/internal/paynow"
	"mukando/internal/pkg/utils"
	"mukando/internal/repository"
)

var (
	// ErrMalformedCallback marks a webhook payload that could not be decoded
	// or lacks the correlation reference.
	ErrMalformedCallback = errors.New("callback payload is malformed")

	// ErrReferenceMismatch marks a poll response carrying a different
	// reference than the payment it was polled for.
	ErrReferenceMismatch = errors.New("poll response reference does not match payment")

	// ErrStatusUnknown is returned when the poll window elapses without a
	// terminal state. The payment stays pending; the webhook can still
	// resolve it later.
	ErrStatusUnknown = errors.New("payment outcome unknown: poll window elapsed")

	// ErrReferenceExhausted is returned when reference generation keeps
	// colliding, which should never happen in practice.
	ErrReferenceExhausted = errors.New("could not generate a unique payment reference")
)

const referenceAttempts = 5

// CallbackResult reports the outcome of a processed webhook.
type CallbackResult struct {
	Success   bool
	PaymentID string
	Status    models.PaymentStatus
}

// Options tunes the service; zero values fall back to defaults.
type Options struct {
	ReferencePrefix string
	PollInterval    time.Duration
	PollTimeout     time.Duration
}

// PaymentService is the operation set exposed to collaborators: create a
// payment, check its status, process a gateway webhook. It composes the
// gateway client and the reconciler; all status writes go through the
// reconciler.
type PaymentService struct {
	store        PaymentStore
	gateway      paynow.Gateway
	recon        *Reconciler
	logger       *zap.Logger
	refPrefix    string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewPaymentService(store PaymentStore, gateway paynow.Gateway, logger *zap.Logger, opts Options) *PaymentService {
	if opts.ReferencePrefix == "" {
		opts.ReferencePrefix = "MKD"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Minute
	}
	return &PaymentService{
		store:        store,
		gateway:      gateway,
		recon:        NewReconciler(store, logger),
		logger:       logger,
		refPrefix:    opts.ReferencePrefix,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
	}
}

// Reconciler exposes the reconciliation routine for the sweep job.
func (s *PaymentService) Reconciler() *Reconciler {
	return s.recon
}

// GenerateReference produces a fresh reference under the service's prefix.
func (s *PaymentService) GenerateReference() string {
	return utils.NewReference(s.refPrefix)
}

// CreatePayment persists a pending payment and initiates it at the gateway.
// The row is written before the first outbound request, so even a failed
// initiation leaves an audit trail. Initiation is never auto-retried; a
// fresh attempt needs a fresh reference.
func (s *PaymentService) CreatePayment(ctx context.Context, req models.CreatePaymentRequest) (*models.Payment, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", req.AmountCents)
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	p, err := s.persistPending(req)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if isExpressMethod(req.Method) {
		resp, gwErr := s.gateway.InitiateMobile(ctx, paynow.MobileRequest{
			Reference:   p.Reference,
			AmountCents: p.AmountCents,
			Description: p.Purpose,
			Phone:       req.Phone,
			Method:      req.Method,
		})
		if gwErr != nil {
			return s.failInitiation(p, gwErr)
		}
		updates["poll_url"] = resp.PollURL
		updates["instructions"] = resp.Instructions
	} else {
		resp, gwErr := s.gateway.InitiateTransaction(ctx, paynow.InitiateRequest{
			Reference:   p.Reference,
			AmountCents: p.AmountCents,
			Description: p.Purpose,
			AuthEmail:   req.Email,
		})
		if gwErr != nil {
			return s.failInitiation(p, gwErr)
		}
		updates["poll_url"] = resp.PollURL
		updates["redirect_url"] = resp.RedirectURL
	}

	if err := s.store.UpdateByID(p.ID, updates); err != nil {
		return nil, fmt.Errorf("record poll handle for %s: %w", p.ID, err)
	}

	s.logger.Info("Payment initiated",
		zap.String("payment_id", p.ID),
		zap.String("reference", p.Reference),
		zap.Int64("amount_cents", p.AmountCents),
		zap.String("method", p.Method))

	return s.store.FindByID(p.ID)
}

// GetStatus returns the current payment record, polling the gateway first
// when the stored state is still pending. Terminal records are returned
// without gateway contact.
func (s *PaymentService) GetStatus(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() || p.PollURL == "" {
		return p, nil
	}

	res, err := s.gateway.PollTransaction(ctx, p.PollURL)
	if err != nil {
		// Poll failures are transient from the caller's view: the record is
		// unchanged and the webhook can still resolve it.
		s.logger.Warn("Status poll failed",
			zap.String("payment_id", p.ID),
			zap.String("reference", p.Reference),
			zap.Error(err))
		return p, err
	}
	if res.Reference != "" && res.Reference != p.Reference {
		s.logger.Warn("Poll response for wrong reference",
			zap.String("payment_id", p.ID),
			zap.String("expected", p.Reference),
			zap.String("got", res.Reference))
		return p, ErrReferenceMismatch
	}

	return s.recon.Apply(p.ID, Observation{
		Status:        paynow.MapStatus(res.StatusToken),
		ExternalID:    res.PaynowReference,
		AmountCents:   res.AmountCents,
		HasAmount:     res.HasAmount,
		FailureReason: res.Fields["error"],
		RawPayload:    res.Raw,
	})
}

// ProcessCallback handles a gateway webhook delivery. Verification runs
// before any lookup or mutation; a bad signature is a security event, not a
// transient error. The returned error distinguishes rejection reasons for
// logging while CallbackResult.Success is all the gateway ever learns.
func (s *PaymentService) ProcessCallback(ctx context.Context, raw string) (CallbackResult, error) {
	fields := paynow.Decode(raw)
	if len(fields) == 0 {
		return CallbackResult{}, ErrMalformedCallback
	}

	if !s.gateway.Verify(fields) {
		s.logger.Warn("Rejected callback with invalid signature",
			zap.String("reference", fields["reference"]))
		return CallbackResult{}, paynow.ErrInvalidSignature
	}

	reference := fields["reference"]
	if reference == "" {
		return CallbackResult{}, ErrMalformedCallback
	}

	obs := Observation{
		Status:        paynow.MapStatus(fields["status"]),
		ExternalID:    fields["paynowreference"],
		FailureReason: fields["error"],
		RawPayload:    raw,
	}
	if amount, ok := paynow.ParseAmount(fields["amount"]); ok {
		obs.AmountCents = amount
		obs.HasAmount = true
	}

	p, err := s.recon.Apply(reference, obs)
	if err != nil {
		return CallbackResult{}, err
	}

	s.logger.Info("Callback reconciled",
		zap.String("payment_id", p.ID),
		zap.String("reference", p.Reference),
		zap.String("status", string(p.Status)))

	return CallbackResult{Success: true, PaymentID: p.ID, Status: p.Status}, nil
}

// WaitForTerminal polls GetStatus until the payment reaches a terminal
// state, the context is cancelled, or the poll window elapses. On timeout
// the outcome is unknown, not failed: the record stays pending for the
// webhook to resolve. No timers leak past return.
func (s *PaymentService) WaitForTerminal(ctx context.Context, id string) (*models.Payment, error) {
	deadline := time.NewTimer(s.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		p, err := s.GetStatus(ctx, id)
		if err != nil && errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if err == nil && p.Status.Terminal() {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-deadline.C:
			return p, ErrStatusUnknown
		case <-ticker.C:
		}
	}
}

func (s *PaymentService) persistPending(req models.CreatePaymentRequest) (*models.Payment, error) {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		p := &models.Payment{
			ID:          utils.GenerateUUID(),
			Reference:   utils.NewReference(s.refPrefix),
			AmountCents: req.AmountCents,
			Currency:    req.Currency,
			Purpose:     req.Purpose,
			Method:      req.Method,
			Status:      models.StatusPending,
		}
		err := s.store.Create(p)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, repository.ErrDuplicateReference) {
			s.logger.Warn("Reference collision on create, regenerating",
				zap.String("reference", p.Reference))
			continue
		}
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	return nil, ErrReferenceExhausted
}

// failInitiation records a definitive gateway rejection as a failed payment.
// Transport errors leave the row pending: the request may have reached the
// gateway, and a later poll or webhook settles it.
func (s *PaymentService) failInitiation(p *models.Payment, gwErr error) (*models.Payment, error) {
	var gatewayErr *paynow.GatewayError
	if errors.As(gwErr, &gatewayErr) || errors.Is(gwErr, paynow.ErrInvalidSignature) {
		updated, err := s.recon.Apply(p.ID, Observation{
			Status:        models.StatusFailed,
			FailureReason: gwErr.Error(),
			RawPayload:    gwErr.Error(),
		})
		if err == nil {
			p = updated
		}
	}
	s.logger.Error("Payment initiation failed",
		zap.String("payment_id", p.ID),
		zap.String("reference", p.Reference),
		zap.Error(gwErr))
	return p, fmt.Errorf("initiate payment %s: %w", p.Reference, gwErr)
}

func isExpressMethod(method string) bool {
	switch method {
	case "ecocash", "onemoney", "innbucks", "telecash":
		return true
	}
	return false
}
