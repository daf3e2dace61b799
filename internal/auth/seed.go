package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed password.
const seedPasswordBytes = 16

// SeedAdmin creates the initial account on first boot if no users exist.
// The generated password is logged once and must be changed immediately.
// Returns the generated password (empty string if seeding was skipped).
func SeedAdmin(ctx context.Context, accounts *Accounts, email string, logger *slog.Logger) (string, error) {
	count, err := accounts.users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}

	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	// Hex has no uppercase letter or symbol; the suffix covers every policy rule.
	password := hex.EncodeToString(passwordBytes) + "-Aa1"

	user, err := accounts.Register(ctx, RegisterRequest{
		Email:    email,
		Password: password,
		Name:     "System Administrator",
	})
	if err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"user_id", user.ID,
		"email", user.Email.String(),
		"initial_credential", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
