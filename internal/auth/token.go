// Package auth issues and checks operator bearer tokens and decides who may
// run ingestion and admin operations.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrForbidden    = errors.New("admin privileges required")
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Signer issues HMAC-SHA256 tokens of the form subject.expiry.signature,
// where subject is base64url encoded and expiry is unix seconds.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Issue returns a token for subject valid for ttl.
func (s *Signer) Issue(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	sub := base64.RawURLEncoding.EncodeToString([]byte(subject))
	exp := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	return sub + "." + exp + "." + s.sign(sub, exp), nil
}

// Verify implements TokenVerifier.
func (s *Signer) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	sub, exp, sig := parts[0], parts[1], parts[2]
	if !hmac.Equal([]byte(s.sign(sub, exp)), []byte(sig)) {
		return "", ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if s.now().Unix() >= expiry {
		return "", ErrExpiredToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(sub)
	if err != nil {
		return "", fmt.Errorf("%w: subject encoding", ErrInvalidToken)
	}
	return string(raw), nil
}

func (s *Signer) sign(sub, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(sub + ":" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}

// AdminDirectory answers whether a user is privileged.
type AdminDirectory interface {
	IsAdmin(userID string) bool
}

// Allowlist is an AdminDirectory backed by a fixed set of user ids.
type Allowlist map[string]bool

// NewAllowlist builds an Allowlist from ids, ignoring blanks.
func NewAllowlist(ids []string) Allowlist {
	out := make(Allowlist, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}

// IsAdmin implements AdminDirectory.
func (a Allowlist) IsAdmin(userID string) bool {
	return a[userID]
}
