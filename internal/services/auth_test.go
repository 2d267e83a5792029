package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storylingo/backend/internal/apperr"
	"github.com/storylingo/backend/internal/repos"
	"github.com/storylingo/backend/internal/requestdata"
	"github.com/storylingo/backend/internal/types"
)

func newAuthService(t *testing.T) AuthService {
	t.Helper()
	db := testDB(t)
	log := testLogger()
	return NewAuthService(
		db, log,
		repos.NewUserRepo(db, log),
		repos.NewUserTokenRepo(db, log),
		"test-secret",
		time.Hour,
		24*time.Hour,
	)
}

func registerTestUser(t *testing.T, as AuthService, email string) {
	t.Helper()
	user := &types.User{
		Email:     email,
		Password:  "password123",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}
	if err := as.RegisterUser(context.Background(), user); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	as := newAuthService(t)
	registerTestUser(t, as, "ada@example.com")

	access, refresh, err := as.LoginUser(ctx, "Ada@Example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("empty token pair")
	}

	authedCtx, err := as.SetContextFromToken(ctx, access)
	if err != nil {
		t.Fatalf("set context: %v", err)
	}
	rd := requestdata.GetRequestData(authedCtx)
	if rd == nil || rd.TokenString != access || rd.RefreshToken != refresh {
		t.Fatalf("request data = %+v", rd)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	as := newAuthService(t)
	registerTestUser(t, as, "ada@example.com")

	err := as.RegisterUser(context.Background(), &types.User{
		Email:    "ada@example.com",
		Password: "anotherpassword",
	})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	as := newAuthService(t)
	err := as.RegisterUser(context.Background(), &types.User{
		Email:    "ada@example.com",
		Password: "short",
	})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	as := newAuthService(t)
	registerTestUser(t, as, "ada@example.com")

	_, _, err := as.LoginUser(context.Background(), "ada@example.com", "wrongpassword")
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	ctx := context.Background()
	as := newAuthService(t)
	registerTestUser(t, as, "ada@example.com")

	access, refresh, err := as.LoginUser(ctx, "ada@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	authedCtx, err := as.SetContextFromToken(ctx, access)
	if err != nil {
		t.Fatalf("set context: %v", err)
	}

	newAccess, newRefresh, err := as.RefreshUser(authedCtx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if newRefresh == refresh {
		t.Fatal("refresh token not rotated")
	}
	if newAccess == access {
		t.Fatal("access token not rotated")
	}

	// The old pair is dead after rotation.
	if _, err := as.SetContextFromToken(ctx, access); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("old access token err = %v, want ErrUnauthorized", err)
	}
	if _, err := as.SetContextFromToken(ctx, newAccess); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
}

// Login and both refreshes land within the same second here, so the issued
// tokens only differ if each carries its own jti.
func TestTokensMintedWithinSameSecondAreDistinct(t *testing.T) {
	ctx := context.Background()
	as := newAuthService(t)
	registerTestUser(t, as, "ada@example.com")

	access, _, err := as.LoginUser(ctx, "ada@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	seen := map[string]bool{access: true}
	for i := 0; i < 2; i++ {
		authedCtx, err := as.SetContextFromToken(ctx, access)
		if err != nil {
			t.Fatalf("set context (rotation %d): %v", i+1, err)
		}
		access, _, err = as.RefreshUser(authedCtx)
		if err != nil {
			t.Fatalf("refresh (rotation %d): %v", i+1, err)
		}
		if seen[access] {
			t.Fatalf("rotation %d re-issued an already seen access token", i+1)
		}
		seen[access] = true
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	ctx := context.Background()
	as := newAuthService(t)
	registerTestUser(t, as, "ada@example.com")

	access, _, err := as.LoginUser(ctx, "ada@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	authedCtx, err := as.SetContextFromToken(ctx, access)
	if err != nil {
		t.Fatalf("set context: %v", err)
	}
	if err := as.LogoutUser(authedCtx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := as.SetContextFromToken(ctx, access); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("revoked token err = %v, want ErrUnauthorized", err)
	}
}
