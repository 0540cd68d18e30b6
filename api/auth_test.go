package api

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"primetrade-api/domain"
)

func TestBearerToken(t *testing.T) {
	testCases := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer header.payload.signature", "header.payload.signature", nil},
		{"padded", "  Bearer header.payload.signature ", "header.payload.signature", nil},
		{"empty", "   ", "", errMissingAuthorization},
		{"prefix only", "Bearer ", "", errBadAuthorization},
		{"lowercase scheme", "bearer a.b.c", "", errBadAuthorization},
		{"many periods", "Bearer " + strings.Repeat(".", 1000), "", errBadAuthorization},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := bearerToken(tc.header)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want error %v, got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Fatalf("want token %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIssueAndResolveToken(t *testing.T) {
	auth := NewAuth([]byte("test-secret"), time.Hour, nil, "api://aud", "https://issuer/")
	token, err := auth.IssueToken(domain.User{ID: "user-123", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := auth.IdentityFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.UserID != "user-123" || id.Email != "a@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestResolveTokenRejects(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuth(secret, time.Hour, nil, "api://aud", "https://issuer/")
	now := time.Now()
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "user-123",
			"aud": "api://aud",
			"iss": "https://issuer/",
			"exp": now.Add(5 * time.Minute).Unix(),
			"iat": now.Add(-time.Minute).Unix(),
		}
	}

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	rs256, err := jwt.NewWithClaims(jwt.SigningMethodRS256, valid()).SignedString(rsaKey)
	if err != nil {
		t.Fatalf("sign rs256: %v", err)
	}

	testCases := map[string]string{
		"wrong secret": signHS256(t, []byte("other"), valid()),
		"expired": func() string {
			c := valid()
			c["exp"] = now.Add(-time.Minute).Unix()
			return signHS256(t, secret, c)
		}(),
		"no expiry": func() string {
			c := valid()
			delete(c, "exp")
			return signHS256(t, secret, c)
		}(),
		"wrong audience": func() string {
			c := valid()
			c["aud"] = "api://other"
			return signHS256(t, secret, c)
		}(),
		"missing issuer": func() string {
			c := valid()
			delete(c, "iss")
			return signHS256(t, secret, c)
		}(),
		"missing sub": func() string {
			c := valid()
			delete(c, "sub")
			return signHS256(t, secret, c)
		}(),
		"rs256 without jwks": rs256,
		"garbage":            "a.b.c",
	}
	for name, token := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.ResolveToken(token)
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	auth := NewAuth(nil, time.Hour, nil, "", "")
	if _, err := auth.IssueToken(domain.User{ID: "u"}); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestIssuedTokenExpiry(t *testing.T) {
	auth := NewAuth([]byte("s"), 0, nil, "", "")
	if auth.Expiry != defaultTokenExpiry {
		t.Fatalf("unexpected default expiry: %v", auth.Expiry)
	}
	fixed := time.Now().Add(-2 * time.Hour)
	auth.Expiry = time.Hour
	auth.now = func() time.Time { return fixed }
	token, err := auth.IssueToken(domain.User{ID: "u"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	auth.now = time.Now
	if _, err := auth.ResolveToken(token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}
