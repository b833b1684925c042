package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

const testKid = "bridge-ops-1"

type jwksFixture struct {
	key     *rsa.PrivateKey
	fetches atomic.Int32
	server  *httptest.Server
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.fetches.Add(1)
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{{
			Kid: testKid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) token(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(f.key)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return signed
}

func TestJWTValidator_Principal(t *testing.T) {
	f := newJWKSFixture(t)
	v := NewJWTValidator(f.server.URL, "https://auth.example")
	want := common.HexToAddress("0x2c16B4b5D4B0a3e3bF1e5f3cE6D8a1b2C3d40744")
	exp := time.Now().Add(time.Hour).Unix()

	got, err := v.Principal(t.Context(), f.token(t, testKid, jwt.MapClaims{
		"iss":         "https://auth.example",
		"exp":         exp,
		"evm_address": want.Hex(),
	}))
	if err != nil {
		t.Fatalf("Principal failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %s, got %s", want.Hex(), got.Hex())
	}

	// subject fallback, served from the cached key set
	got, err = v.Principal(t.Context(), f.token(t, testKid, jwt.MapClaims{
		"iss": "https://auth.example",
		"exp": exp,
		"sub": want.Hex(),
	}))
	if err != nil {
		t.Fatalf("Principal failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %s, got %s", want.Hex(), got.Hex())
	}
	if n := f.fetches.Load(); n != 1 {
		t.Errorf("expected 1 JWKS fetch, got %d", n)
	}
}

func TestJWTValidator_Rejects(t *testing.T) {
	f := newJWKSFixture(t)
	v := NewJWTValidator(f.server.URL, "https://auth.example")
	addr := "0x2c16B4b5D4B0a3e3bF1e5f3cE6D8a1b2C3d40744"
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		kid    string
		claims jwt.MapClaims
	}{
		{name: "expired", kid: testKid, claims: jwt.MapClaims{"iss": "https://auth.example", "exp": time.Now().Add(-time.Hour).Unix(), "sub": addr}},
		{name: "wrong issuer", kid: testKid, claims: jwt.MapClaims{"iss": "https://other.example", "exp": exp, "sub": addr}},
		{name: "unknown key", kid: "rotated", claims: jwt.MapClaims{"iss": "https://auth.example", "exp": exp, "sub": addr}},
		{name: "no address", kid: testKid, claims: jwt.MapClaims{"iss": "https://auth.example", "exp": exp, "sub": "operator"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Principal(t.Context(), f.token(t, tt.kid, tt.claims)); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	if _, err := v.Principal(t.Context(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestVerifier_Bearer(t *testing.T) {
	f := newJWKSFixture(t)
	want := common.HexToAddress("0x2c16B4b5D4B0a3e3bF1e5f3cE6D8a1b2C3d40744")
	token := f.token(t, testKid, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix(), "sub": want.Hex()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bridges/binance-source/pause", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	v := NewVerifier(DefaultMaxSkew, WithJWT(NewJWTValidator(f.server.URL, "")))
	got, err := v.Verify(req)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != want {
		t.Errorf("expected %s, got %s", want.Hex(), got.Hex())
	}

	// without a validator the bearer header is ignored
	if _, err := NewVerifier(DefaultMaxSkew).Verify(req); !errors.Is(err, ErrMissingSignature) {
		t.Errorf("expected ErrMissingSignature, got %v", err)
	}
}
