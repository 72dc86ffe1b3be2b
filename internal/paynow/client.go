package paynow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mukando/internal/pkg/httpclient"
)

const (
	initiatePath = "/interface/initiatetransaction"
	remotePath   = "/interface/remotetransaction"

	statusOK   = "ok"
	statusSent = "sent"
)

// ErrInvalidSignature marks an inbound gateway message whose hash does not
// match its contents. Treated as a potential forgery, never retried.
var ErrInvalidSignature = errors.New("paynow: response signature mismatch")

// GatewayError is a structured rejection from the gateway itself
// (status=Error or an otherwise unusable response).
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return "paynow: gateway error: " + e.Message
}

// InitiateRequest starts a standard (browser redirect) checkout.
type InitiateRequest struct {
	Reference   string
	AmountCents int64
	Description string
	AuthEmail   string
}

// InitiateResponse is the gateway's answer to a standard checkout.
type InitiateResponse struct {
	RedirectURL string
	PollURL     string
}

// MobileRequest starts an express (push-to-phone) checkout.
type MobileRequest struct {
	Reference   string
	AmountCents int64
	Description string
	Phone       string
	Method      string
}

// MobileResponse is the gateway's answer to an express checkout.
type MobileResponse struct {
	PollURL      string
	Instructions string
}

// PollResult is the decoded, signature-checked result of a status poll.
// StatusToken is the gateway's raw vocabulary; run it through MapStatus
// before applying it to a payment.
type PollResult struct {
	StatusToken     string
	Reference       string
	PaynowReference string
	AmountCents     int64
	HasAmount       bool
	Raw             string
	Fields          map[string]string
}

// Gateway is the surface the payment service depends on, so tests can swap
// in a fake without a live gateway.
type Gateway interface {
	InitiateTransaction(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
	InitiateMobile(ctx context.Context, req MobileRequest) (*MobileResponse, error)
	PollTransaction(ctx context.Context, pollURL string) (*PollResult, error)
	Verify(fields map[string]string) bool
}

// Client talks to the Paynow-style gateway. It is the only component that
// performs network I/O toward the gateway, and it is stateless: safe to
// share across concurrent requests.
type Client struct {
	integrationID  string
	integrationKey string
	baseURL        string
	returnURL      string
	resultURL      string
	http           *httpclient.Client
	logger         *zap.Logger
}

// NewClient builds a gateway client. The integration key is the shared
// signing secret; callers must not construct a client without one.
func NewClient(integrationID, integrationKey, baseURL, returnURL, resultURL string, logger *zap.Logger) *Client {
	return &Client{
		integrationID:  integrationID,
		integrationKey: integrationKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		returnURL:      returnURL,
		resultURL:      resultURL,
		http:           httpclient.New().WithTimeout(30 * time.Second),
		logger:         logger,
	}
}

// Verify checks an inbound message's signature against the client's
// integration key. The hash field inside the map is ignored; pass the
// carried hash explicitly via fields["hash"].
func (c *Client) Verify(fields map[string]string) bool {
	return VerifyHash(fields, c.integrationKey, fields[hashField])
}

// InitiateTransaction starts a standard checkout and returns the browser
// redirect target plus the poll URL.
func (c *Client) InitiateTransaction(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	form := map[string]string{
		"id":             c.integrationID,
		"reference":      req.Reference,
		"amount":         FormatAmount(req.AmountCents),
		"additionalinfo": req.Description,
		"returnurl":      c.returnURL,
		"resulturl":      c.resultURL,
		"status":         "Message",
	}
	if req.AuthEmail != "" {
		form["authemail"] = req.AuthEmail
	}
	form[hashField] = Sign(form, c.integrationKey)

	fields, err := c.post(ctx, c.baseURL+initiatePath, form)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponse(fields, statusOK); err != nil {
		return nil, err
	}

	resp := &InitiateResponse{
		RedirectURL: fields["browserurl"],
		PollURL:     fields["pollurl"],
	}
	if resp.RedirectURL == "" || resp.PollURL == "" {
		return nil, &GatewayError{Message: "response missing browserurl/pollurl"}
	}
	return resp, nil
}

// InitiateMobile starts an express checkout that pushes a prompt to the
// customer's phone. The gateway answers Ok or Sent on success.
func (c *Client) InitiateMobile(ctx context.Context, req MobileRequest) (*MobileResponse, error) {
	form := map[string]string{
		"id":             c.integrationID,
		"reference":      req.Reference,
		"amount":         FormatAmount(req.AmountCents),
		"additionalinfo": req.Description,
		"returnurl":      c.returnURL,
		"resulturl":      c.resultURL,
		"phone":          req.Phone,
		"method":         req.Method,
		"status":         "Message",
	}
	form[hashField] = Sign(form, c.integrationKey)

	fields, err := c.post(ctx, c.baseURL+remotePath, form)
	if err != nil {
		return nil, err
	}
	if err := c.checkResponse(fields, statusOK, statusSent); err != nil {
		return nil, err
	}

	resp := &MobileResponse{
		PollURL:      fields["pollurl"],
		Instructions: fields["instructions"],
	}
	if resp.PollURL == "" {
		return nil, &GatewayError{Message: "response missing pollurl"}
	}
	return resp, nil
}

// PollTransaction fetches the current gateway-side state of a transaction.
// It mutates nothing locally; the returned result has already passed the
// signature check and still needs MapStatus before being applied.
func (c *Client) PollTransaction(ctx context.Context, pollURL string) (*PollResult, error) {
	raw, err := c.http.Get(ctx, pollURL)
	if err != nil {
		return nil, fmt.Errorf("paynow: poll request failed: %w", err)
	}

	fields := Decode(string(raw))
	if len(fields) == 0 {
		c.logger.Warn("Unparseable poll response from gateway", zap.String("poll_url", pollURL))
		return nil, &GatewayError{Message: "empty or unparseable poll response"}
	}
	if !c.Verify(fields) {
		return nil, ErrInvalidSignature
	}

	result := &PollResult{
		StatusToken:     fields["status"],
		Reference:       fields["reference"],
		PaynowReference: fields["paynowreference"],
		Raw:             string(raw),
		Fields:          fields,
	}
	if amount, ok := ParseAmount(fields["amount"]); ok {
		result.AmountCents = amount
		result.HasAmount = true
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, url string, form map[string]string) (map[string]string, error) {
	raw, err := c.http.PostForm(ctx, url, form)
	if err != nil {
		return nil, fmt.Errorf("paynow: request failed: %w", err)
	}
	fields := Decode(string(raw))
	if len(fields) == 0 {
		c.logger.Warn("Unparseable response from gateway", zap.String("url", url))
		return nil, &GatewayError{Message: "empty or unparseable response"}
	}
	return fields, nil
}

// checkResponse rejects error responses and verifies the signature on
// successful ones. Error responses are not signed by the gateway.
func (c *Client) checkResponse(fields map[string]string, okTokens ...string) error {
	status := strings.ToLower(fields["status"])
	for _, tok := range okTokens {
		if status == tok {
			if !c.Verify(fields) {
				return ErrInvalidSignature
			}
			return nil
		}
	}
	if msg := fields["error"]; msg != "" {
		return &GatewayError{Message: msg}
	}
	return &GatewayError{Message: "unexpected status " + strconv.Quote(fields["status"])}
}

// FormatAmount renders cents as the gateway's fixed two-decimal string.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseAmount converts a gateway amount string back to cents.
func ParseAmount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * 100)), true
}
