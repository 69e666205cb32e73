package volunteers

import (
	"context"
	"errors"
	"testing"

	"github.com/zcy-charity/jar-service/internal/app/services/jars"
	"github.com/zcy-charity/jar-service/internal/app/storage/memory"
)

func newService() (*Service, *memory.Store) {
	store := memory.New()
	return New(store, "test-secret", nil), store
}

func validInput() CreateInput {
	return CreateInput{
		Email:      "Helper@Example.com",
		Password:   "correct horse",
		PublicName: "Helper",
		FirstName:  "Anna",
		LastName:   "Kovalenko",
	}
}

func TestCreateVolunteer(t *testing.T) {
	svc, _ := newService()
	v, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Email != "helper@example.com" {
		t.Fatalf("email should be lower-cased, got %q", v.Email)
	}
	if v.Active {
		t.Fatal("new accounts must start inactive")
	}
	if v.PasswordHash == "correct horse" {
		t.Fatal("password must be hashed")
	}
}

func TestCreateVolunteerValidation(t *testing.T) {
	svc, _ := newService()
	cases := []struct {
		name  string
		build func(CreateInput) CreateInput
	}{
		{"bad email", func(in CreateInput) CreateInput { in.Email = "not-an-email"; return in }},
		{"short password", func(in CreateInput) CreateInput { in.Password = "short"; return in }},
		{"short public name", func(in CreateInput) CreateInput { in.PublicName = "ab"; return in }},
		{"short first name", func(in CreateInput) CreateInput { in.FirstName = "ab"; return in }},
		{"bad phone", func(in CreateInput) CreateInput { in.PhoneNumber = "0991234567"; return in }},
		{"short phone", func(in CreateInput) CreateInput { in.PhoneNumber = "+38099123456"; return in }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.build(validInput()))
			var vErr *jars.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateVolunteerAcceptsValidPhone(t *testing.T) {
	svc, _ := newService()
	in := validInput()
	in.PhoneNumber = "+380991234567"
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService()
	created, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	token, v, err := svc.Authenticate(context.Background(), "helper@example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if v.ID != created.ID {
		t.Fatalf("unexpected volunteer %s", v.ID)
	}

	id, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != created.ID {
		t.Fatalf("token subject mismatch: %s", id)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Create(context.Background(), validInput()); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), "helper@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Authenticate(context.Background(), "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.VerifyToken("not.a.token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	other := New(memory.New(), "different-secret", nil)
	if _, err := other.Create(context.Background(), validInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	token, _, err := other.Authenticate(context.Background(), "helper@example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("token signed with another secret must be rejected, got %v", err)
	}
}

func TestSetActive(t *testing.T) {
	svc, _ := newService()
	v, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	activated, err := svc.SetActive(context.Background(), v.ID, true)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !activated.Active {
		t.Fatal("account should be active")
	}
}
