// Package authorize gates privileged commands on operator-issued tokens.
//
// A token is a JSON claims payload followed by a 64-byte ed25519 signature
// from the authority keypair. The worker holds only the authority public
// key; it can verify tokens but never mint them. Verification failures are
// deliberately coarse: a missing token is reported differently from a
// rejected one, but nothing more is revealed to the caller.
package authorize

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nkeys"
)

// signatureSize is the fixed size of an ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Claims is the signed payload of an authorization token.
type Claims struct {
	// ID uniquely identifies the token (hex string). The worker keys
	// its session record on it.
	ID string `json:"id"`

	// IssuedAt is a Unix timestamp (seconds) of when the token was minted.
	IssuedAt int64 `json:"iat"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token is
	// no longer valid.
	ExpiresAt int64 `json:"exp"`

	// Rights are the command rights this token grants.
	Rights []string `json:"rights"`
}

// HasRight reports whether the claims grant the named right.
func (c *Claims) HasRight(right string) bool {
	for _, r := range c.Rights {
		if r == right {
			return true
		}
	}
	return false
}

// Errors returned by Verify and related functions.
var (
	ErrTokenTooShort = errors.New("authorize: token too short for signature")
	ErrBadSignature  = errors.New("authorize: invalid token signature")
	ErrTokenExpired  = errors.New("authorize: token has expired")
)

// Mint signs a fresh set of claims with the authority keypair and returns
// the raw wire bytes: JSON payload followed by the 64-byte signature.
func Mint(kp nkeys.KeyPair, rights []string, ttl time.Duration) ([]byte, error) {
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("authorize: generating token id: %w", err)
	}

	now := time.Now()
	claims := Claims{
		ID:        hex.EncodeToString(id),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Rights:    rights,
	}

	payload, err := json.Marshal(&claims)
	if err != nil {
		return nil, fmt.Errorf("authorize: encoding token payload: %w", err)
	}

	signature, err := kp.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("authorize: signing token: %w", err)
	}

	token := make([]byte, len(payload)+signatureSize)
	copy(token, payload)
	copy(token[len(payload):], signature)

	return token, nil
}

// Verify splits the raw token bytes, checks the signature against the
// authority public key, decodes the claims, and checks expiry.
func Verify(publicKey string, token []byte) (*Claims, error) {
	return VerifyAt(publicKey, token, time.Now())
}

// VerifyAt is like Verify but accepts an explicit time for expiry checks.
// This supports deterministic testing.
func VerifyAt(publicKey string, token []byte, now time.Time) (*Claims, error) {
	if len(token) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	kp, err := nkeys.FromPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("authorize: parsing authority public key: %w", err)
	}

	splitPoint := len(token) - signatureSize
	payload := token[:splitPoint]
	signature := token[splitPoint:]

	if err := kp.Verify(payload, signature); err != nil {
		return nil, ErrBadSignature
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("authorize: decoding token payload: %w", err)
	}

	if now.Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}
