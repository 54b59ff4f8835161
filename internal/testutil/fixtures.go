package testutil

import (
	"testing"
	"time"

	"storefront-sync/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTSecret signs fixture tokens. The client under test decodes
// without verifying, so the value only matters to stub-server tests.
const TestJWTSecret = "test-secret-not-for-production-0123456789"

// The library default truncates exp to whole seconds, which turns the
// sub-second TTLs used by the expiry-timer tests into already-expired
// tokens. Millisecond precision keeps those TTLs meaningful.
func init() {
	jwt.TimePrecision = time.Millisecond
}

// MakeToken builds a signed HS256 token for sub expiring after ttl.
func MakeToken(t *testing.T, sub string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign fixture token: %v", err)
	}
	return token
}

// MakeTokenWithoutExpiry builds a token missing the exp claim, which the
// session manager must reject.
func MakeTokenWithoutExpiry(t *testing.T, sub string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{Subject: sub}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign fixture token: %v", err)
	}
	return token
}

// Line builds one detailed cart line.
func Line(lineID, productID string, quantity int, unitPrice float64) domain.CartLine {
	return domain.CartLine{
		LineID:    lineID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
}
