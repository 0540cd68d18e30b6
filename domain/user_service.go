package domain

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// UserStore defines the persistence operations of the credential service.
type UserStore interface {
	// FindUserByEmail and FindUserByID return nil when no user matches.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	// InsertUser returns ErrEmailTaken when the email is registered.
	InsertUser(ctx context.Context, u User) (User, error)
	// UpdateUser returns nil when the user does not exist and ErrEmailTaken
	// when the new email belongs to someone else.
	UpdateUser(ctx context.Context, id string, p UserPatch) (*User, error)
}

// TokenIssuer mints bearer tokens for authenticated users.
type TokenIssuer interface {
	IssueToken(u User) (string, error)
}

// UserService handles signup, login and profile management.
type UserService struct {
	st     UserStore
	hasher *PasswordHasher
	tokens TokenIssuer
}

func NewUserService(st UserStore, hasher *PasswordHasher, tokens TokenIssuer) UserService {
	return UserService{st: st, hasher: hasher, tokens: tokens}
}

// Signup registers a new account and returns it with a fresh token.
func (s UserService) Signup(ctx context.Context, in SignupInput) (User, string, error) {
	if err := in.validate(); err != nil {
		return User{}, "", err
	}
	existing, err := s.st.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return User{}, "", fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return User{}, "", ErrEmailTaken
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, "", fmt.Errorf("hash password: %w", err)
	}
	u, err := s.st.InsertUser(ctx, User{Name: in.Name, Email: in.Email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, "", err
		}
		return User{}, "", fmt.Errorf("insert user: %w", err)
	}
	token, err := s.tokens.IssueToken(u)
	if err != nil {
		return User{}, "", fmt.Errorf("issue token: %w", err)
	}
	log.WithField("user", u.ID).Info("user signed up")
	return u, token, nil
}

// Login checks the password of the account registered under in.Email.
func (s UserService) Login(ctx context.Context, in LoginInput) (User, string, error) {
	if err := in.validate(); err != nil {
		return User{}, "", err
	}
	u, err := s.st.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return User{}, "", fmt.Errorf("find user: %w", err)
	}
	if u == nil || !s.hasher.Verify(in.Password, u.PasswordHash) {
		return User{}, "", ErrInvalidCredentials
	}
	token, err := s.tokens.IssueToken(*u)
	if err != nil {
		return User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return *u, token, nil
}

// Profile returns the account of the given user.
func (s UserService) Profile(ctx context.Context, id string) (User, error) {
	u, err := s.st.FindUserByID(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("find user %s: %w", id, err)
	}
	if u == nil {
		return User{}, ErrNotFound
	}
	return *u, nil
}

// UpdateProfile changes name, email or bio of the given user.
func (s UserService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (User, error) {
	p, err := in.patch()
	if err != nil {
		return User{}, err
	}
	if p.Email != nil {
		other, err := s.st.FindUserByEmail(ctx, *p.Email)
		if err != nil {
			return User{}, fmt.Errorf("find user: %w", err)
		}
		if other != nil && other.ID != id {
			return User{}, ErrEmailTaken
		}
	}
	u, err := s.st.UpdateUser(ctx, id, p)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, err
		}
		return User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	if u == nil {
		return User{}, ErrNotFound
	}
	return *u, nil
}
