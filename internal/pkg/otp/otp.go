// Package otp issues and checks the numeric one-time codes that are emailed
// to customers to confirm their address.
//
// Codes are hashed with a fast peppered SHA-256 rather than bcrypt: the code
// space is tiny either way and the protection comes from the short TTL and
// the route rate limit.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"time"
)

const (
	DefaultLength = 6
	DefaultTTL    = 15 * time.Minute
	maxLength     = 12
)

var ErrInvalidLength = errors.New("otp length must be between 4 and 12")

// Challenge is a freshly issued code. Only Hash and ExpiresAt are stored.
type Challenge struct {
	Code      string
	Hash      string
	ExpiresAt time.Time
}

type Manager struct {
	pepper string
	length int
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(pepper string, length int, ttl time.Duration) *Manager {
	if length < 4 || length > maxLength {
		length = DefaultLength
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{pepper: pepper, length: length, ttl: ttl, now: time.Now}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue generates a new code together with its hash and expiry.
func (m *Manager) Issue() (*Challenge, error) {
	code, err := Generate(m.length)
	if err != nil {
		return nil, err
	}
	return &Challenge{
		Code:      code,
		Hash:      m.Hash(code),
		ExpiresAt: m.now().Add(m.ttl),
	}, nil
}

func (m *Manager) Hash(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code) + m.pepper))
	return hex.EncodeToString(sum[:])
}

// IsExpired reports whether now is past expiresAt. No grace period is added.
func (m *Manager) IsExpired(expiresAt time.Time) bool {
	return m.now().After(expiresAt)
}

// Generate returns a numeric code of the given length, each digit uniform.
func Generate(length int) (string, error) {
	if length < 4 || length > maxLength {
		return "", ErrInvalidLength
	}
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Equal compares two hashes in constant time. Inputs of different length
// still run a full comparison before returning false.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare([]byte(b), make([]byte, len(b)))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
