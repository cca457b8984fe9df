// Package token signs and verifies the compact capability tokens handed out as
// exit passes and visitor passes.
//
// Wire format:
//
//	base64url(payload) "." base64url(HMAC-SHA256(payload, secret))
//
// both without padding, where payload is
//
//	subject|owner|tenant|nonce|expiresAtEpochMillis
//
// For exit passes subject is the vehicle id and owner the resident id; for
// visitor passes subject is the pass code and owner the visitor id.  The nonce
// only keeps otherwise identical payloads from sharing a signature; it is not
// tracked, and single use is enforced by the callers.
//
// Verification never returns an error.  A forged or expired token is an
// ordinary input at a gate, so the result is a bool (or a Result for callers
// that want the audit reason).
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	fieldSep  = "|"
	partSep   = "."
	numFields = 5
)

var enc = base64.RawURLEncoding

var (
	ErrEmptySecret  = errors.New("token: signing secret is empty")
	ErrInvalidField = errors.New("token: payload fields must be non-empty and must not contain '|'")
	ErrInvalidTTL   = errors.New("token: ttl must be positive")
)

// Result classifies a verification outcome.
type Result int

const (
	Valid Result = iota
	Malformed
	BadSignature
	Expired
	SubjectMismatch
	TenantMismatch
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Malformed:
		return "malformed"
	case BadSignature:
		return "bad_signature"
	case Expired:
		return "expired"
	case SubjectMismatch:
		return "subject_mismatch"
	case TenantMismatch:
		return "tenant_mismatch"
	default:
		return "unknown"
	}
}

// Claims is the decoded payload of a token.
type Claims struct {
	Subject   string
	Owner     string
	Tenant    string
	Nonce     string
	ExpiresAt time.Time
}

// Codec issues and verifies tokens for one secret.  It is safe for
// concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// WithClock overrides the clock for deterministic testing.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Issue signs a token for subject/owner/tenant that expires ttl from now.
func (c *Codec) Issue(subject, owner, tenant string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, ErrInvalidTTL
	}
	for _, f := range []string{subject, owner, tenant} {
		if f == "" || strings.Contains(f, fieldSep) {
			return "", time.Time{}, ErrInvalidField
		}
	}

	expiresMs := c.now().Add(ttl).UnixMilli()
	payload := strings.Join([]string{
		subject,
		owner,
		tenant,
		uuid.NewString(),
		strconv.FormatInt(expiresMs, 10),
	}, fieldSep)

	tok := enc.EncodeToString([]byte(payload)) + partSep + c.sign([]byte(payload))
	return tok, time.UnixMilli(expiresMs).UTC(), nil
}

// Verify reports whether tok is authentic, unexpired, and was issued for
// expectedSubject within expectedTenant.
func (c *Codec) Verify(tok, expectedSubject, expectedTenant string) bool {
	return c.Check(tok, expectedSubject, expectedTenant) == Valid
}

// Check is Verify with the failure reason.
func (c *Codec) Check(tok, expectedSubject, expectedTenant string) Result {
	claims, res := c.Inspect(tok, expectedTenant)
	if res != Valid {
		return res
	}
	if claims.Subject != expectedSubject {
		return SubjectMismatch
	}
	return Valid
}

// Inspect verifies tok against expectedTenant without knowing the subject in
// advance, returning the claims when the token is valid.
func (c *Codec) Inspect(tok, expectedTenant string) (Claims, Result) {
	parts := strings.Split(tok, partSep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Claims{}, Malformed
	}

	payload, err := enc.Strict().DecodeString(parts[0])
	if err != nil {
		return Claims{}, Malformed
	}
	// Reject non-canonical encodings (ignored newlines, trailing bits) so the
	// presented text is exactly what was signed.
	if enc.EncodeToString(payload) != parts[0] {
		return Claims{}, Malformed
	}

	if !hmac.Equal([]byte(c.sign(payload)), []byte(parts[1])) {
		return Claims{}, BadSignature
	}

	fields := strings.Split(string(payload), fieldSep)
	if len(fields) != numFields {
		return Claims{}, Malformed
	}
	expiresMs, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Claims{}, Malformed
	}

	claims := Claims{
		Subject:   fields[0],
		Owner:     fields[1],
		Tenant:    fields[2],
		Nonce:     fields[3],
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}

	if claims.Tenant != expectedTenant {
		return Claims{}, TenantMismatch
	}
	if c.now().UnixMilli() > expiresMs {
		return Claims{}, Expired
	}
	return claims, Valid
}

func (c *Codec) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return enc.EncodeToString(mac.Sum(nil))
}
