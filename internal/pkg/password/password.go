package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost matches the BCRYPT_SALT_ROUNDS default.
const DefaultCost = 12

// bcrypt only looks at the first 72 bytes of its input.
const maxLength = 72

var ErrInvalidInput = errors.New("password must be 1-72 bytes")

// Hasher hashes and checks account passwords with bcrypt.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) == 0 || len(plain) > maxLength {
		return "", ErrInvalidInput
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hashed. A malformed hash is a mismatch.
func (h *Hasher) Verify(plain, hashed string) bool {
	if plain == "" || hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
