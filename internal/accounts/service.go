package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/idgen"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/validation"
)

// RegisterRequest carries the profile for a new account. An empty
// AccountNumber is generated.
type RegisterRequest struct {
	AccountNumber string `json:"accountNumber"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	Occupation    string `json:"occupation"`
	Region        string `json:"region"`
	Contact       string `json:"contact"`
	PIN           string `json:"pin"`
	Role          Role   `json:"-"`
}

// Service implements account operations on top of a Store.
type Service struct {
	store      Store
	bcryptCost int
}

// NewService creates an account service hashing PINs at the given bcrypt cost.
func NewService(store Store, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: store, bcryptCost: bcryptCost}
}

// Store exposes the underlying store for components sharing it.
func (s *Service) Store() Store { return s.store }

// Register validates req, hashes the PIN and stores a new zero-balance account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.Name = validation.SanitizeString(req.Name, validation.MaxStringLength)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Occupation = validation.SanitizeString(req.Occupation, validation.MaxStringLength)
	req.Region = validation.SanitizeString(req.Region, validation.MaxStringLength)
	req.Gender = validation.SanitizeString(req.Gender, 32)
	req.Contact = validation.SanitizeString(req.Contact, 32)
	if req.Role == "" {
		req.Role = RoleUser
	}

	if errs := validation.Validate(
		validation.Required("name", req.Name),
		validation.Required("email", req.Email),
		validation.Required("pin", req.PIN),
		validation.ValidEmail("email", req.Email),
		validation.ValidPIN("pin", req.PIN),
		validation.ValidAccountNumber("accountNumber", req.AccountNumber),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, errs.Error())
	}
	if req.Age < 0 || req.Age > 150 {
		return nil, fmt.Errorf("%w: age out of range", ErrInvalidInput)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	if strings.EqualFold(req.AccountNumber, SystemAccount) {
		return nil, ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	generated := req.AccountNumber == ""
	now := time.Now().UTC()
	a := &Account{
		AccountNumber: req.AccountNumber,
		Name:          req.Name,
		Email:         req.Email,
		Age:           req.Age,
		Gender:        req.Gender,
		Occupation:    req.Occupation,
		Region:        req.Region,
		Contact:       req.Contact,
		PinHash:       string(hash),
		Balance:       decimal.Zero,
		Role:          req.Role,
		SavedContacts: []Contact{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Generated numbers can collide; retry a few times before giving up.
	for attempt := 0; ; attempt++ {
		if generated {
			a.AccountNumber = idgen.AccountNumber()
		}
		err = s.store.Create(ctx, a)
		if !generated || !errors.Is(err, ErrAccountExists) || attempt == 2 {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	logging.L(ctx).Info("account registered",
		"account_number", a.AccountNumber, "role", a.Role, "region", a.Region)
	return a.Clone(), nil
}

// Authenticate checks the PIN for a login and rejects blocked accounts.
func (s *Service) Authenticate(ctx context.Context, accountNumber, pin string) (*Account, error) {
	a, err := s.store.Get(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if a.Blocked {
		return nil, ErrAccountBlocked
	}
	if err := CheckPIN(a, pin); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckPIN compares pin against the account's bcrypt hash in constant time.
func CheckPIN(a *Account, pin string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(a.PinHash), []byte(pin)); err != nil {
		return ErrIncorrectPIN
	}
	return nil
}

func (s *Service) Get(ctx context.Context, accountNumber string) (*Account, error) {
	return s.store.Get(ctx, accountNumber)
}

func (s *Service) List(ctx context.Context) ([]*Account, error) {
	return s.store.List(ctx)
}

func (s *Service) ListByRegion(ctx context.Context, region string) ([]*Account, error) {
	return s.store.ListByRegion(ctx, region)
}

// ToggleBlock flips the blocked flag and returns the updated account.
func (s *Service) ToggleBlock(ctx context.Context, accountNumber string) (*Account, error) {
	a, err := s.store.Update(ctx, accountNumber, func(a *Account) error {
		a.Blocked = !a.Blocked
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.L(ctx).Warn("account block toggled", "account_number", accountNumber, "blocked", a.Blocked)
	return a, nil
}

// AddContact saves a payee on the account. Contacts are unique by number.
func (s *Service) AddContact(ctx context.Context, accountNumber string, c Contact) (*Account, error) {
	c.Name = validation.SanitizeString(c.Name, validation.MaxStringLength)
	c.Contact = validation.SanitizeString(c.Contact, 32)
	if errs := validation.Validate(
		validation.Required("name", c.Name),
		validation.Required("contact", c.Contact),
	); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, errs.Error())
	}

	return s.store.Update(ctx, accountNumber, func(a *Account) error {
		for _, existing := range a.SavedContacts {
			if existing.Contact == c.Contact {
				return ErrContactExists
			}
		}
		a.SavedContacts = append(a.SavedContacts, c)
		return nil
	})
}

// EnsureAdmin creates the bootstrap admin account if it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, accountNumber, pin string) error {
	_, err := s.store.Get(ctx, accountNumber)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	_, err = s.Register(ctx, RegisterRequest{
		AccountNumber: accountNumber,
		Name:          "Administrator",
		Email:         strings.ToLower(accountNumber) + "@admin.local",
		PIN:           pin,
		Role:          RoleAdmin,
	})
	if errors.Is(err, ErrAccountExists) {
		return nil
	}
	return err
}
