package domain

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestUserService(st *fakeUserStore) UserService {
	return NewUserService(st, NewPasswordHasher(bcrypt.MinCost), fakeIssuer{})
}

func TestSignupAndLogin(t *testing.T) {
	st := newFakeUserStore()
	svc := newTestUserService(st)
	ctx := context.Background()

	u, token, err := svc.Signup(ctx, SignupInput{Name: " Ada ", Email: "Ada@Example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.Name != "Ada" || u.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %#v", u)
	}
	if u.PasswordHash == "" || u.PasswordHash == "secret1" {
		t.Fatalf("password not hashed: %q", u.PasswordHash)
	}
	if token != "token-"+u.ID {
		t.Fatalf("unexpected token %q", token)
	}

	logged, _, err := svc.Login(ctx, LoginInput{Email: "ADA@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.ID != u.ID {
		t.Fatalf("logged in as %q, want %q", logged.ID, u.ID)
	}

	if _, _, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-pw"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	st := newFakeUserStore()
	svc := newTestUserService(st)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, SignupInput{Name: "A", Email: "a@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, _, err := svc.Signup(ctx, SignupInput{Name: "B", Email: "A@EXAMPLE.COM", Password: "secret2"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newTestUserService(newFakeUserStore())
	_, _, err := svc.Signup(context.Background(), SignupInput{Email: "not-an-email", Password: "123"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %#v", verr.Fields)
	}
}

func TestUpdateProfile(t *testing.T) {
	st := newFakeUserStore()
	svc := newTestUserService(st)
	ctx := context.Background()
	a, _, _ := svc.Signup(ctx, SignupInput{Name: "A", Email: "a@example.com", Password: "secret1"})
	if _, _, err := svc.Signup(ctx, SignupInput{Name: "B", Email: "b@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("signup b: %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, a.ID, ProfileInput{Bio: ptrString(" hello "), Email: ptrString("A@example.com")})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Bio != "hello" || updated.Email != "a@example.com" || updated.Name != "A" {
		t.Fatalf("unexpected profile: %#v", updated)
	}

	if _, err := svc.UpdateProfile(ctx, a.ID, ProfileInput{Email: ptrString("b@example.com")}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, "ghost", ProfileInput{Name: ptrString("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Profile(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
