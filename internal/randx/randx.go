// Package randx generates the random identifiers and secrets handed out to clients.
package randx

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	// Lowercase is the alphabet for session ids, which people type by hand.
	Lowercase = "abcdefghijklmnopqrstuvwxyz"

	// Alphanumeric is the alphabet for user ids and tokens.
	Alphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	SessionIDLength = 5
	UserIDLength    = 15
	TokenLength     = 25
)

// Generator draws identifiers from a random source.
type Generator struct {
	reader io.Reader
}

// New returns a Generator backed by crypto/rand.
func New() *Generator {
	return &Generator{reader: rand.Reader}
}

// NewWithReader returns a Generator that reads randomness from r.
func NewWithReader(r io.Reader) *Generator {
	return &Generator{reader: r}
}

func (g *Generator) SessionID() (string, error) {
	return g.String(Lowercase, SessionIDLength)
}

func (g *Generator) UserID() (string, error) {
	return g.String(Alphanumeric, UserIDLength)
}

func (g *Generator) Token() (string, error) {
	return g.String(Alphanumeric, TokenLength)
}

// String returns length characters drawn uniformly from alphabet.
func (g *Generator) String(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(g.reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random identifier: %w", err)
		}
		result[i] = alphabet[num.Int64()]
	}

	return string(result), nil
}

// IsSessionID reports whether s has the shape of a generated session id.
func IsSessionID(s string) bool {
	if len(s) != SessionIDLength {
		return false
	}
	for _, c := range s {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
