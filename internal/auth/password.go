package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm tags stored alongside each password hash.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Argon2id parameters, per the OWASP 2025 recommendation.
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length
)

// PasswordHash is the stored form of a password: an opaque hash string plus
// the algorithm that produced it.
type PasswordHash struct {
	Hash      string
	Algorithm string
}

// IsZero reports whether no hash is set.
func (h PasswordHash) IsZero() bool { return h.Hash == "" }

// CredentialVerifier hashes raw secrets and checks them against stored hashes.
type CredentialVerifier interface {
	Hash(raw, algorithm string) (PasswordHash, error)
	Verify(raw string, stored PasswordHash) (bool, error)
	DefaultAlgorithm() string
}

// PasswordAlgorithm is one hashing scheme.
type PasswordAlgorithm interface {
	Name() string
	Hash(raw string) (string, error)
	Verify(raw, encoded string) (bool, error)
}

// ErrUnsupportedAlgorithm is returned for an unknown algorithm tag.
var ErrUnsupportedAlgorithm = errors.New("unsupported password algorithm")

// Verifier dispatches to the algorithm named by each stored hash, so
// accounts created under an older scheme keep working after the default
// changes.
type Verifier struct {
	algorithms map[string]PasswordAlgorithm
	def        string
}

// NewVerifier builds a Verifier hashing new passwords with def.
func NewVerifier(def string, algorithms ...PasswordAlgorithm) (*Verifier, error) {
	v := &Verifier{algorithms: make(map[string]PasswordAlgorithm, len(algorithms)), def: def}
	for _, a := range algorithms {
		v.algorithms[a.Name()] = a
	}
	if _, ok := v.algorithms[def]; !ok {
		return nil, fmt.Errorf("%w: default %q not registered", ErrUnsupportedAlgorithm, def)
	}
	return v, nil
}

// DefaultAlgorithm returns the tag used for new hashes.
func (v *Verifier) DefaultAlgorithm() string { return v.def }

// Hash hashes raw with the named algorithm, or the default when empty.
func (v *Verifier) Hash(raw, algorithm string) (PasswordHash, error) {
	if algorithm == "" {
		algorithm = v.def
	}
	a, ok := v.algorithms[algorithm]
	if !ok {
		return PasswordHash{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	h, err := a.Hash(raw)
	if err != nil {
		return PasswordHash{}, err
	}
	return PasswordHash{Hash: h, Algorithm: algorithm}, nil
}

// Verify checks raw against stored using the stored algorithm tag.
func (v *Verifier) Verify(raw string, stored PasswordHash) (bool, error) {
	a, ok := v.algorithms[stored.Algorithm]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, stored.Algorithm)
	}
	return a.Verify(raw, stored.Hash)
}

// Argon2id hashes with Argon2id in PHC string format.
type Argon2id struct{}

// Name returns AlgorithmArgon2id.
func (Argon2id) Name() string { return AlgorithmArgon2id }

// Hash returns $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>.
func (Argon2id) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks a plaintext password against a PHC hash string using the
// parameters recorded in the hash.
func (Argon2id) Verify(password, encodedHash string) (bool, error) {
	salt, hash, params, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return nil, nil, params, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, hash, params, nil
}

// Bcrypt hashes with bcrypt at a fixed cost.
type Bcrypt struct {
	Cost int
}

// Name returns AlgorithmBcrypt.
func (Bcrypt) Name() string { return AlgorithmBcrypt }

// Hash returns the bcrypt encoding of password. A zero cost uses
// bcrypt.DefaultCost.
func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(out), nil
}

// Verify compares password with a bcrypt hash. A mismatch is not an error.
func (Bcrypt) Verify(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt verify: %w", err)
	}
}

// DefaultVerifier registers both algorithms with Argon2id as the default.
func DefaultVerifier() *Verifier {
	v, _ := NewVerifier(AlgorithmArgon2id, Argon2id{}, Bcrypt{}) //nolint:errcheck // default is always registered
	return v
}
