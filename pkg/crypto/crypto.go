package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// inviteAlphabet deliberately omits 0/O, 1/I/l and other glyphs that are easy
// to mistype when a code is read aloud or copied from print.
const inviteAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz"

// DefaultInviteCodeLength yields > 68 bits of entropy over the invite alphabet.
const DefaultInviteCodeLength = 12

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateInviteCode returns a random code drawn from the unambiguous invite
// alphabet. Codes are case-sensitive.
func GenerateInviteCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultInviteCodeLength
	}

	max := big.NewInt(int64(len(inviteAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = inviteAlphabet[n.Int64()]
	}
	return string(code), nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("token length must be positive")
	}

	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateTempPassword produces a human-typable temporary credential used when
// provisioning teacher accounts. The caller is expected to force a change on
// first sign-in.
func GenerateTempPassword() (string, error) {
	return GenerateInviteCode(16)
}
