// Package payment drives the QR payment flow: issuing a payable QR
// transaction, recording scans, accepting the provider's paid callback,
// and letting staff confirm settled transactions.
package payment

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shopcore/internal/counter"
	"shopcore/internal/domain"
	"shopcore/internal/gateway"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrQRExpired           = errors.New("payment QR expired")
	ErrNotPaid             = errors.New("transaction not paid yet")
)

// Payment statuses stored on transaction documents.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusConfirmed = "confirmed"
	StatusExpired   = "expired"
)

// QRWindow is how long an issued QR stays payable.
const QRWindow = 5 * time.Minute

// QRRequest is what the encoder needs to render a payable QR payload.
type QRRequest struct {
	BillNumber string
	Amount     float64
	Currency   string
	Merchant   string
}

// QREncoder produces the provider-specific QR payload string. The byte
// level encoding is the provider SDK's business; tests use a fake.
type QREncoder interface {
	Encode(req QRRequest) (string, error)
}

// Service coordinates transactions through the document gateway so the
// usual permission gates, persistence and change events apply.
type Service struct {
	gateway  *gateway.Gateway
	counters *counter.Service
	encoder  QREncoder
	merchant string
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(gw *gateway.Gateway, counters *counter.Service, encoder QREncoder, merchant string, logger *slog.Logger) *Service {
	return &Service{
		gateway:  gw,
		counters: counters,
		encoder:  encoder,
		merchant: merchant,
		logger:   logger.With("component", "payment"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// system is the principal used for provider callbacks, which arrive
// outside any user session.
var system = domain.Principal{ID: "system", Role: domain.RoleSuperAdmin}

// GenerateInput describes the payable amount being QR-encoded.
type GenerateInput struct {
	OrderID  string
	BranchID string
	Amount   float64
	Currency string
}

// GenerateQR reserves a bill number, encodes the QR payload and records
// a pending transaction that expires with the QR window.
func (s *Service) GenerateQR(p domain.Principal, in GenerateInput) (map[string]any, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", gateway.ErrValidation)
	}
	if in.Currency != "KHR" && in.Currency != "USD" {
		return nil, fmt.Errorf("%w: unsupported currency %q", gateway.ErrValidation, in.Currency)
	}
	bill, err := s.counters.Reserve(in.BranchID, domain.ColTransaction)
	if err != nil {
		return nil, err
	}
	qr, err := s.encoder.Encode(QRRequest{
		BillNumber: bill,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Merchant:   s.merchant,
	})
	if err != nil {
		return nil, fmt.Errorf("encode payment QR: %w", err)
	}
	doc, err := s.gateway.Insert(p, domain.ColTransaction, map[string]any{
		domain.FieldUserID: p.ID,
		"orderId":          in.OrderID,
		"branchId":         in.BranchID,
		"amount":           in.Amount,
		"currency":         in.Currency,
		"billNumber":       bill,
		"qrString":         qr,
		"paymentStatus":    StatusPending,
		"qrExpiresAt":      s.now().Add(QRWindow).Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment QR issued", "billNumber", bill, "orderId", in.OrderID)
	return doc, nil
}

// RecordScan stamps the first time a customer's banking app scanned the
// QR, for support diagnostics.
func (s *Service) RecordScan(transactionID string) error {
	doc, err := s.load(transactionID)
	if err != nil {
		return err
	}
	if _, already := doc["scannedAt"]; already {
		return nil
	}
	_, err = s.gateway.Update(system, domain.ColTransaction, transactionID, map[string]any{
		"scannedAt": s.now().Format(time.RFC3339Nano),
	})
	return err
}

// MarkPaid is the provider webhook path: it flips the transaction
// matching the bill number to paid. Unknown bill numbers are an error so
// the provider retries.
func (s *Service) MarkPaid(billNumber, providerRef string) (map[string]any, error) {
	tx, ok := s.findByBill(billNumber)
	if !ok {
		return nil, fmt.Errorf("%w: bill %s", ErrTransactionNotFound, billNumber)
	}
	id, _ := tx[domain.FieldID].(string)
	updated, err := s.gateway.Update(system, domain.ColTransaction, id, map[string]any{
		"paymentStatus": StatusPaid,
		"providerRefId": providerRef,
		"paidAt":        s.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction paid", "billNumber", billNumber, "providerRef", providerRef)
	return updated, nil
}

// Status reports the current payment status, degrading a pending
// transaction to expired once its QR window has passed.
func (s *Service) Status(transactionID string) (string, error) {
	doc, err := s.load(transactionID)
	if err != nil {
		return "", err
	}
	status, _ := doc["paymentStatus"].(string)
	if status == StatusPending && s.expired(doc) {
		return StatusExpired, nil
	}
	return status, nil
}

// Confirm lets staff settle a paid transaction. Pending or expired
// transactions refuse confirmation.
func (s *Service) Confirm(p domain.Principal, transactionID string) (map[string]any, error) {
	doc, err := s.load(transactionID)
	if err != nil {
		return nil, err
	}
	if status, _ := doc["paymentStatus"].(string); status != StatusPaid {
		return nil, fmt.Errorf("%w: status %s", ErrNotPaid, status)
	}
	return s.gateway.Update(p, domain.ColTransaction, transactionID, map[string]any{
		"paymentStatus": StatusConfirmed,
		"confirmedAt":   s.now().Format(time.RFC3339Nano),
	})
}

func (s *Service) load(transactionID string) (map[string]any, error) {
	docs, err := s.gateway.List(system, domain.ColTransaction,
		fmt.Sprintf(`[{"field":"_id","operator":"==","value":%q}]`, transactionID))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}
	return docs[0], nil
}

func (s *Service) findByBill(billNumber string) (map[string]any, bool) {
	docs, err := s.gateway.List(system, domain.ColTransaction,
		fmt.Sprintf(`[{"field":"billNumber","operator":"==","value":%q}]`, billNumber))
	if err != nil || len(docs) == 0 {
		return nil, false
	}
	return docs[0], true
}

func (s *Service) expired(doc map[string]any) bool {
	raw, _ := doc["qrExpiresAt"].(string)
	expiry, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	return s.now().After(expiry)
}
