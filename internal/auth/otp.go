package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"shopcore/internal/store"
)

// OTPCollection is the reserved store collection holding pending codes.
// Entries expire through the store's TTL sweep.
const OTPCollection = "otp_codes"

var (
	ErrOTPMismatch = errors.New("verification code does not match")
	ErrOTPExpired  = errors.New("verification code expired")
)

// Sender delivers a one-time code to a phone number. The SMS provider
// integration satisfies this in production; tests substitute a recorder.
type Sender interface {
	SendCode(phone, code string) error
}

// OTPService issues and checks one-time codes, storing them with a TTL
// so unconsumed codes vanish on their own.
type OTPService struct {
	manager *store.Manager
	sender  Sender
	ttl     time.Duration
	logger  *slog.Logger
}

func NewOTPService(manager *store.Manager, sender Sender, ttl time.Duration, logger *slog.Logger) *OTPService {
	return &OTPService{
		manager: manager,
		sender:  sender,
		ttl:     ttl,
		logger:  logger.With("component", "otp"),
	}
}

// Request generates a 6-digit code for the phone, stores it under the
// normalized number and hands it to the sender. A repeated request
// replaces the previous code.
func (s *OTPService) Request(phone string) error {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	col := s.manager.Collection(OTPCollection)
	col.Set(normalized, []byte(code), s.ttl)
	if err := s.sender.SendCode(normalized, code); err != nil {
		col.Delete(normalized)
		return fmt.Errorf("send verification code: %w", err)
	}
	s.logger.Info("verification code issued", "phone", normalized)
	return nil
}

// Verify consumes the pending code for the phone. A match deletes the
// entry; expired or absent entries report ErrOTPExpired.
func (s *OTPService) Verify(phone, code string) error {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	col := s.manager.Collection(OTPCollection)
	stored, ok := col.Get(normalized)
	if !ok {
		return ErrOTPExpired
	}
	if string(stored) != code {
		return ErrOTPMismatch
	}
	col.Delete(normalized)
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
