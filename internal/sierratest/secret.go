package sierratest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Kept small: secrets are hashed once per server and
// verified on every token request a test makes.
const (
	secretMemory      = 1024
	secretIterations  = 1
	secretParallelism = 1
	secretKeyLength   = 32
	secretSaltLength  = 16
)

var errSecretMismatch = errors.New("sierratest: client secret does not match")

// hashSecret returns a PHC-format Argon2id hash of secret.
func hashSecret(secret string) (string, error) {
	salt := make([]byte, secretSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(secret), salt, secretIterations, secretMemory, secretParallelism, secretKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		secretMemory,
		secretIterations,
		secretParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifySecret compares secret against a hash made by hashSecret.
func verifySecret(secret, encoded string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return errors.New("sierratest: invalid secret hash format")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("sierratest: invalid secret hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("sierratest: invalid secret salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("sierratest: invalid secret hash: %w", err)
	}

	computed := argon2.IDKey([]byte(secret), salt, iters, mem, par, uint32(len(expected))) // #nosec G115
	if subtle.ConstantTimeCompare(computed, expected) != 1 {
		return errSecretMismatch
	}
	return nil
}
