package auth

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/rwa-bridge/pkg/app/errors"
	apphttp "github.com/chainsafe/rwa-bridge/pkg/app/http"
)

// Headers carrying a request signature
const (
	HeaderSignature = "X-Bridge-Signature"
	HeaderTimestamp = "X-Bridge-Timestamp"
	HeaderSigner    = "X-Bridge-Signer"
)

const (
	DefaultMaxSkew = 5 * time.Minute
	// MaxBodyBytes bounds the body read to check a signature
	MaxBodyBytes = 1 << 20
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrInvalidTimestamp = errors.New("invalid request timestamp")
	ErrStaleRequest     = errors.New("request timestamp outside the allowed window")
	ErrBodyTooLarge     = errors.New("request body too large")
	ErrSignerMismatch   = errors.New("signature does not match the claimed signer")
)

// RequestMessage is the text a client signs for a request:
// "<METHOD> <PATH> <unix seconds> <keccak256 of the body>".
func RequestMessage(method, path string, timestamp int64, body []byte) string {
	return fmt.Sprintf("%s %s %d %s", method, path, timestamp, crypto.Keccak256Hash(body).Hex())
}

// SignRequest sets the signature headers of r for the signer key at now. The
// body is read and put back for sending.
func SignRequest(r *http.Request, key *ecdsa.PrivateKey, now time.Time) error {
	body, err := bufferBody(r, nil, -1)
	if err != nil {
		return err
	}
	ts := now.Unix()
	sig, err := SignEIP191(key, RequestMessage(r.Method, r.URL.Path, ts, body))
	if err != nil {
		return err
	}
	r.Header.Set(HeaderSignature, sig)
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	r.Header.Set(HeaderSigner, crypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}

// Verifier authenticates signed requests, and bearer tokens when a
// JWTValidator is configured
type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time
	jwt     *JWTValidator
	logger  *zap.Logger
}

type VerifierOption func(*Verifier)

func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithJWT accepts bearer tokens issued by an operator identity provider
func WithJWT(validator *JWTValidator) VerifierOption {
	return func(v *Verifier) { v.jwt = validator }
}

func WithLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier accepts signatures whose timestamp is within maxSkew of the
// current time in either direction.
func NewVerifier(maxSkew time.Duration, opts ...VerifierOption) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	v := &Verifier{maxSkew: maxSkew, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns the address that signed r. The body is read to check the
// signature and put back for the handler.
func (v *Verifier) Verify(r *http.Request) (common.Address, error) {
	return v.verify(nil, r)
}

func (v *Verifier) verify(w http.ResponseWriter, r *http.Request) (common.Address, error) {
	if token, ok := bearerToken(r); ok && v.jwt != nil {
		return v.jwt.Principal(r.Context(), token)
	}
	sig := r.Header.Get(HeaderSignature)
	raw := r.Header.Get(HeaderTimestamp)
	claimed := r.Header.Get(HeaderSigner)
	if sig == "" || raw == "" || claimed == "" {
		return common.Address{}, ErrMissingSignature
	}
	if !common.IsHexAddress(claimed) {
		return common.Address{}, fmt.Errorf("%w: %q is not an address", ErrSignerMismatch, claimed)
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return common.Address{}, fmt.Errorf("%w: off by %s", ErrStaleRequest, skew.Truncate(time.Second))
	}
	body, err := bufferBody(r, w, MaxBodyBytes)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := VerifyEIP191Signature(RequestMessage(r.Method, r.URL.Path, ts, body), sig)
	if err != nil {
		return common.Address{}, err
	}
	// any signature recovers some address; only the claimed one is accepted
	if signer != common.HexToAddress(claimed) {
		return common.Address{}, ErrSignerMismatch
	}
	return signer, nil
}

// bufferBody reads the body of r and replaces it with an in-memory copy. A
// negative limit reads without bound.
func bufferBody(r *http.Request, w http.ResponseWriter, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	src := r.Body
	if limit >= 0 {
		src = http.MaxBytesReader(w, r.Body, limit)
	}
	body, err := io.ReadAll(src)
	_ = r.Body.Close()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return body, nil
}

// Middleware rejects unsigned requests and stores the signer in the request
// context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := v.verify(w, r)
		if err != nil {
			v.logger.Debug("Request authentication failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			if errors.Is(err, ErrBodyTooLarge) {
				apphttp.WriteError(w, apperrors.BadRequestError(err, err.Error()))
				return
			}
			apphttp.WriteError(w, apperrors.UnAuthorizedError(err, err.Error()))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}
