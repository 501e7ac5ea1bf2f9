package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/bcrypt"

	"shopcore/internal/domain"
	"shopcore/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RevokedTokenCollection holds logged-out tokens until they expire on
// their own.
const RevokedTokenCollection = "revoked_tokens"

var ErrPhoneTaken = errors.New("phone number already registered")

// Service is the account lifecycle: register, login, logout, guests.
// User documents live in the same User collection the gateway serves.
type Service struct {
	manager *store.Manager
	tokens  *TokenIssuer
	otp     *OTPService
	logger  *slog.Logger
}

func NewService(manager *store.Manager, tokens *TokenIssuer, otp *OTPService, logger *slog.Logger) *Service {
	return &Service{
		manager: manager,
		tokens:  tokens,
		otp:     otp,
		logger:  logger.With("component", "auth"),
	}
}

// OTP exposes the code flow for the transport layer.
func (s *Service) OTP() *OTPService { return s.otp }

// RegisterInput is the signup payload. Code is the OTP previously sent
// to the phone.
type RegisterInput struct {
	Name     string
	Phone    string
	Password string
	Code     string
}

// Session is a logged-in identity plus its bearer token.
type Session struct {
	Token string
	User  map[string]any
}

// Register creates a customer account. The phone is canonicalized and
// must verify against the pending OTP and be unused. New customers get
// the registered-customer grant set.
func (s *Service) Register(in RegisterInput) (*Session, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if err := s.otp.Verify(phone, in.Code); err != nil {
		return nil, err
	}
	if _, ok := s.findByPhone(phone); ok {
		return nil, fmt.Errorf("%w: %s", ErrPhoneTaken, phone)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	user := map[string]any{
		domain.FieldID:        id,
		"name":                in.Name,
		"phone":               phone,
		"displayPhone":        DisplayPhone(phone),
		"password":            string(hashed),
		"role":                string(domain.RoleCustomer),
		"permissions":         domain.RegisteredCustomerGrants,
		domain.FieldCreatedAt: now,
		domain.FieldUpdatedAt: now,
	}
	if err := s.saveUser(id, user); err != nil {
		return nil, err
	}
	s.logger.Info("customer registered", "userId", id)
	return s.sessionFor(user)
}

// Login authenticates by phone and password.
func (s *Service) Login(phone, password string) (*Session, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, ok := s.findByPhone(normalized)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	hashed, _ := user["password"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.sessionFor(user)
}

// Guest issues an anonymous customer identity so browsing, cart and
// payment flows work before signup. Guests get the same grant set as
// phone-created guests so both paths can transact.
func (s *Service) Guest() (*Session, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	user := map[string]any{
		domain.FieldID:        id,
		"role":                string(domain.RoleCustomer),
		"permissions":         domain.RegisteredCustomerGrants,
		"isGuest":             true,
		domain.FieldCreatedAt: now,
		domain.FieldUpdatedAt: now,
	}
	if err := s.saveUser(id, user); err != nil {
		return nil, err
	}
	return s.sessionFor(user)
}

// RequestPasswordReset sends an OTP to a registered phone. Unknown
// phones get the same behavior so the endpoint does not leak which
// numbers have accounts.
func (s *Service) RequestPasswordReset(phone string) error {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	if _, ok := s.findByPhone(normalized); !ok {
		s.logger.Info("password reset requested for unknown phone")
		return nil
	}
	return s.otp.Request(normalized)
}

// ConfirmPasswordReset checks the OTP and issues a short-lived reset
// token for the final password change.
func (s *Service) ConfirmPasswordReset(phone, code string) (string, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	if err := s.otp.Verify(normalized, code); err != nil {
		return "", err
	}
	user, ok := s.findByPhone(normalized)
	if !ok {
		return "", ErrInvalidCredentials
	}
	id, _ := user[domain.FieldID].(string)
	return s.tokens.IssueReset(id)
}

// ResetPassword sets a new password for the user a reset token was
// issued to.
func (s *Service) ResetPassword(resetToken, newPassword string) error {
	userID, err := s.tokens.VerifyReset(resetToken)
	if err != nil {
		return err
	}
	col := s.manager.Collection(domain.ColUser)
	raw, ok := col.Get(userID)
	if !ok {
		return ErrInvalidCredentials
	}
	user, err := decodeUser(raw)
	if err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user["password"] = string(hashed)
	user[domain.FieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.saveUser(userID, user); err != nil {
		return err
	}
	s.logger.Info("password reset completed", "userId", userID)
	return nil
}

// EnsureGuest finds the account registered under a phone number, or
// creates a guest customer for it. Used by the payment flow so a QR can
// be generated for a shopper who never signed up.
func (s *Service) EnsureGuest(phone string) (*Session, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if user, ok := s.findByPhone(normalized); ok {
		return s.sessionFor(user)
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	user := map[string]any{
		domain.FieldID:        id,
		"phone":               normalized,
		"displayPhone":        DisplayPhone(normalized),
		"role":                string(domain.RoleCustomer),
		"permissions":         domain.RegisteredCustomerGrants,
		"isGuest":             true,
		domain.FieldCreatedAt: now,
		domain.FieldUpdatedAt: now,
	}
	if err := s.saveUser(id, user); err != nil {
		return nil, err
	}
	s.logger.Info("guest customer created for payment", "userId", id)
	return s.sessionFor(user)
}

// Logout revokes a token for the remainder of its lifetime.
func (s *Service) Logout(raw string) {
	ttl := s.tokens.TTL()
	// Trim the blacklist entry to the token's actual remaining life
	// when the expiry is readable.
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err == nil && claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	col := s.manager.Collection(RevokedTokenCollection)
	col.Set(raw, []byte{1}, ttl)
}

// Authenticate verifies a bearer token against the signature and the
// revocation list, yielding the request principal.
func (s *Service) Authenticate(raw string) (domain.Principal, error) {
	if _, revoked := s.manager.Collection(RevokedTokenCollection).Get(raw); revoked {
		return domain.Principal{}, ErrTokenRevoked
	}
	return s.tokens.Verify(raw)
}

func (s *Service) sessionFor(user map[string]any) (*Session, error) {
	principal := PrincipalOf(user)
	token, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, err
	}
	public := make(map[string]any, len(user))
	for k, v := range user {
		if k == "password" {
			continue
		}
		public[k] = v
	}
	return &Session{Token: token, User: public}, nil
}

// PrincipalOf derives the request principal from a stored user document.
func PrincipalOf(user map[string]any) domain.Principal {
	id, _ := user[domain.FieldID].(string)
	role, _ := user["role"].(string)
	var tokens []string
	switch perms := user["permissions"].(type) {
	case []string:
		tokens = perms
	case []any:
		for _, p := range perms {
			if str, ok := p.(string); ok {
				tokens = append(tokens, str)
			}
		}
	}
	return domain.Principal{
		ID:          id,
		Role:        domain.Role(role),
		Permissions: domain.NewPermissionSet(tokens),
	}
}

func (s *Service) findByPhone(phone string) (map[string]any, bool) {
	col := s.manager.Collection(domain.ColUser)
	if col.HasIndex("phone") {
		ids, _ := col.Lookup("phone", phone)
		for id, raw := range col.GetMany(ids) {
			if user, err := decodeUser(raw); err == nil {
				return user, true
			}
			s.logger.Error("corrupt user document", "id", id)
		}
		return nil, false
	}
	for id, raw := range col.GetAll() {
		user, err := decodeUser(raw)
		if err != nil {
			s.logger.Error("corrupt user document", "id", id)
			continue
		}
		if user["phone"] == phone {
			return user, true
		}
	}
	return nil, false
}

func (s *Service) saveUser(id string, user map[string]any) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	col := s.manager.Collection(domain.ColUser)
	col.Set(id, raw, 0)
	s.manager.EnqueueSave(domain.ColUser, col)
	return nil
}

func decodeUser(raw []byte) (map[string]any, error) {
	var user map[string]any
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	return user, nil
}
