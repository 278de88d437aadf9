package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPassphrase = errors.New("invalid passphrase")

// HashPassphrase returns the bcrypt hash stored as WARD_PASSPHRASE_HASH.
func HashPassphrase(passphrase string) (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passphrase: %w", err)
	}
	return string(hash), nil
}

// Gate checks submitted passphrases against a single shared bcrypt hash.
type Gate struct {
	hash []byte
}

func NewGate(hash string) (*Gate, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid passphrase hash: %w", err)
	}
	return &Gate{hash: []byte(hash)}, nil
}

func (g *Gate) Check(passphrase string) error {
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(passphrase)); err != nil {
		return ErrInvalidPassphrase
	}
	return nil
}
