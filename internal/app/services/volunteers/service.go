// Package volunteers manages volunteer accounts and login tokens.
package volunteers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/zcy-charity/jar-service/internal/app/domain/volunteer"
	"github.com/zcy-charity/jar-service/internal/app/services/jars"
	"github.com/zcy-charity/jar-service/internal/app/storage"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

// ErrInvalidCredentials is returned on a failed login or a bad token.
var ErrInvalidCredentials = errors.New("invalid credentials")

var phonePattern = regexp.MustCompile(`^\+380\d{9}$`)

// DefaultTokenTTL is how long an issued login token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// CreateInput carries the fields for a new volunteer account. Accounts start
// inactive and must be activated before they may manage jars.
type CreateInput struct {
	Email          string
	Password       string
	PublicName     string
	FirstName      string
	LastName       string
	PhoneNumber    string
	AdditionalInfo string
}

// UpdateInput carries a partial account update. Nil fields keep their stored
// values.
type UpdateInput struct {
	PublicName     *string
	FirstName      *string
	LastName       *string
	PhoneNumber    *string
	AdditionalInfo *string
}

// Service manages volunteer accounts.
type Service struct {
	store     storage.VolunteerStore
	jwtSecret []byte
	tokenTTL  time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// New creates the volunteer service.
func New(store storage.VolunteerStore, jwtSecret string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("volunteers")
	}
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  DefaultTokenTTL,
		log:       log,
		now:       time.Now,
	}
}

// Create registers a new, inactive account.
func (s *Service) Create(ctx context.Context, in CreateInput) (volunteer.Volunteer, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		return volunteer.Volunteer{}, invalid("email", "must be a valid email address")
	}
	if len(in.Password) < 8 {
		return volunteer.Volunteer{}, invalid("password", "must be at least 8 characters")
	}
	for field, value := range map[string]string{
		"public_name": in.PublicName,
		"first_name":  in.FirstName,
		"last_name":   in.LastName,
	} {
		if utf8.RuneCountInString(strings.TrimSpace(value)) < 3 {
			return volunteer.Volunteer{}, invalid(field, "must be at least 3 characters")
		}
	}
	if in.PhoneNumber != "" && !phonePattern.MatchString(in.PhoneNumber) {
		return volunteer.Volunteer{}, invalid("phone_number", "must look like +380999999999")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return volunteer.Volunteer{}, fmt.Errorf("hash password: %w", err)
	}

	v, err := s.store.CreateVolunteer(ctx, volunteer.Volunteer{
		Email:          email,
		PasswordHash:   string(hash),
		PublicName:     strings.TrimSpace(in.PublicName),
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		PhoneNumber:    in.PhoneNumber,
		AdditionalInfo: in.AdditionalInfo,
	})
	if err != nil {
		return volunteer.Volunteer{}, fmt.Errorf("create volunteer: %w", err)
	}
	s.log.WithField("volunteer_id", v.ID).Info("volunteer registered")
	return v, nil
}

// Update applies a partial profile update.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (volunteer.Volunteer, error) {
	v, err := s.store.GetVolunteer(ctx, id)
	if err != nil {
		return volunteer.Volunteer{}, err
	}
	if in.PublicName != nil {
		if utf8.RuneCountInString(strings.TrimSpace(*in.PublicName)) < 3 {
			return volunteer.Volunteer{}, invalid("public_name", "must be at least 3 characters")
		}
		v.PublicName = strings.TrimSpace(*in.PublicName)
	}
	if in.FirstName != nil {
		v.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		v.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.PhoneNumber != nil {
		if *in.PhoneNumber != "" && !phonePattern.MatchString(*in.PhoneNumber) {
			return volunteer.Volunteer{}, invalid("phone_number", "must look like +380999999999")
		}
		v.PhoneNumber = *in.PhoneNumber
	}
	if in.AdditionalInfo != nil {
		v.AdditionalInfo = *in.AdditionalInfo
	}
	return s.store.UpdateVolunteer(ctx, v)
}

// SetActive toggles whether the account may manage jars.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (volunteer.Volunteer, error) {
	v, err := s.store.GetVolunteer(ctx, id)
	if err != nil {
		return volunteer.Volunteer{}, err
	}
	v.Active = active
	return s.store.UpdateVolunteer(ctx, v)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id string) (volunteer.Volunteer, error) {
	return s.store.GetVolunteer(ctx, id)
}

// List returns all accounts ordered by public name.
func (s *Service) List(ctx context.Context) ([]volunteer.Volunteer, error) {
	return s.store.ListVolunteers(ctx)
}

// Delete removes an account and its jars.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteVolunteer(ctx, id)
}

// Authenticate verifies the credentials and issues a signed token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, volunteer.Volunteer, error) {
	v, err := s.store.GetVolunteerByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrNotFound) {
		return "", volunteer.Volunteer{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", volunteer.Volunteer{}, fmt.Errorf("load volunteer: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(password)) != nil {
		return "", volunteer.Volunteer{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": v.ID,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", volunteer.Volunteer{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, v, nil
}

// VerifyToken validates a login token and returns the volunteer id it was
// issued for.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredentials
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidCredentials
	}
	return sub, nil
}

func invalid(field, reason string) *jars.ValidationError {
	return &jars.ValidationError{Field: field, Reason: reason}
}
