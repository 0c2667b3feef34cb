package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedPasswordHash is returned for stored hashes that are not argon2id PHC strings.
var ErrMalformedPasswordHash = errors.New("stored password hash is malformed")

// PasswordPolicy is the argon2id cost used for new employee passwords.
type PasswordPolicy struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltBytes   uint32
	KeyBytes    uint32
}

// DefaultPasswordPolicy follows the argon2 RFC's second recommended profile.
var DefaultPasswordPolicy = PasswordPolicy{
	MemoryKiB:   64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltBytes:   16,
	KeyBytes:    32,
}

// NewPasswordPolicy applies configured costs over the defaults. Zero values keep the default.
func NewPasswordPolicy(memoryKiB, iterations, parallelism int) PasswordPolicy {
	policy := DefaultPasswordPolicy
	if memoryKiB > 0 {
		policy.MemoryKiB = uint32(memoryKiB)
	}
	if iterations > 0 {
		policy.Iterations = uint32(iterations)
	}
	if parallelism > 0 && parallelism <= 255 {
		policy.Parallelism = uint8(parallelism)
	}
	return policy
}

// storedPassword is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" value.
type storedPassword struct {
	memoryKiB   uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p storedPassword) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memoryKiB, p.iterations, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func (p storedPassword) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.iterations, p.memoryKiB, p.parallelism, uint32(len(p.key)))
}

func parseStoredPassword(encoded string) (storedPassword, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return storedPassword{}, ErrMalformedPasswordHash
	}
	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return storedPassword{}, ErrMalformedPasswordHash
	}

	var p storedPassword
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memoryKiB, &p.iterations, &p.parallelism); err != nil {
		return storedPassword{}, ErrMalformedPasswordHash
	}
	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return storedPassword{}, ErrMalformedPasswordHash
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return storedPassword{}, ErrMalformedPasswordHash
	}
	return p, nil
}

// Hash derives a storable argon2id value for password under the policy cost.
func (pp PasswordPolicy) Hash(password string) (string, error) {
	stored := storedPassword{
		memoryKiB:   pp.MemoryKiB,
		iterations:  pp.Iterations,
		parallelism: pp.Parallelism,
		salt:        make([]byte, pp.SaltBytes),
	}
	if _, err := rand.Read(stored.salt); err != nil {
		return "", fmt.Errorf("read password salt: %w", err)
	}
	stored.key = make([]byte, pp.KeyBytes)
	stored.key = stored.derive(password)
	return stored.String(), nil
}

// Check compares password with an encoded hash. stale reports a match whose
// cost differs from the policy, so the caller can store a fresh hash.
func (pp PasswordPolicy) Check(encoded, password string) (stale bool, err error) {
	stored, err := parseStoredPassword(encoded)
	if err != nil {
		return false, err
	}
	if subtle.ConstantTimeCompare(stored.key, stored.derive(password)) != 1 {
		return false, ErrInvalidCredentials
	}
	stale = stored.memoryKiB != pp.MemoryKiB ||
		stored.iterations != pp.Iterations ||
		stored.parallelism != pp.Parallelism ||
		uint32(len(stored.key)) != pp.KeyBytes
	return stale, nil
}
