package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ValidateJWT parses and validates an HS256 dashboard session token and
// returns its claims.
func ValidateJWT(tokenString, secret string) (*jwt.StandardClaims, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	return claims, nil
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomString returns n characters drawn from idAlphabet using crypto/rand.
func randomString(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		b[i] = idAlphabet[idx.Int64()]
	}
	return string(b)
}

// GenerateFileID returns a new file identifier of the form f_<12 chars>.
func GenerateFileID() string {
	return "f_" + randomString(12)
}

// HashKey returns the hex sha256 of an API key. Only the hash is stored.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GeneratedKey holds a freshly minted API key. Key is shown to the caller
// exactly once; Hash and Prefix are what get persisted.
type GeneratedKey struct {
	Key    string
	Hash   string
	Prefix string
}

// GenerateAPIKey mints a new key of the form sf-<type>-<random>.
func GenerateAPIKey(keyType string) GeneratedKey {
	key := fmt.Sprintf("sf-%s-%s", keyType, randomString(32))
	return GeneratedKey{
		Key:    key,
		Hash:   HashKey(key),
		Prefix: key[:16],
	}
}

// ValidKeyFormat reports whether a presented credential looks like one of our
// API keys. Anything else is rejected before touching the database.
func ValidKeyFormat(key string) bool {
	return len(key) > 10 && (key[:10] == "sf-secret-" || key[:10] == "sf-public-")
}

var expiryPattern = regexp.MustCompile(`^(\d+)(h|d)$`)

// ParseExpiry parses upload expiry strings like "12h" or "30d" relative to
// now. Returns an error for anything else.
func ParseExpiry(expires string, now time.Time) (time.Time, error) {
	m := expiryPattern.FindStringSubmatch(expires)
	if m == nil {
		return time.Time{}, errors.New("invalid expires format")
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, errors.New("invalid expires format")
	}
	switch m[2] {
	case "h":
		return now.Add(time.Duration(value) * time.Hour), nil
	case "d":
		return now.Add(time.Duration(value) * 24 * time.Hour), nil
	}
	return time.Time{}, errors.New("invalid expires format")
}
