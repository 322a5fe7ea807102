// Package service holds the application's domain logic: calendar
// administration, check-in registration, session code issuance and
// history export. Handlers translate HTTP to service calls and back;
// repositories translate service calls to SQL.
package service

import (
	"context"
	"fmt"

	"github.com/clubrun/run-attendance/internal/repository"
	"github.com/clubrun/run-attendance/internal/utils"
)

// maxCodeAttempts bounds the collision-retry loop. With the default
// 31-character alphabet and 5-character codes the space holds ~28M
// codes, so hitting this limit means the generator is broken, not
// unlucky.
const maxCodeAttempts = 10

// CodeIssuer mints session codes that are unique across the whole runs
// table. Uniqueness is checked against the store and enforced again by
// the session_code UNIQUE constraint, so a race between two issuers is
// caught at insert time.
type CodeIssuer struct {
	runs     *repository.RunRepo
	alphabet string
	length   int
}

// NewCodeIssuer returns a CodeIssuer drawing codes from the given
// alphabet.
func NewCodeIssuer(runs *repository.RunRepo, alphabet string, length int) *CodeIssuer {
	return &CodeIssuer{runs: runs, alphabet: alphabet, length: length}
}

// NewSessionCode generates a fresh code that no existing run uses,
// retrying on collision.
func (ci *CodeIssuer) NewSessionCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := utils.RandomCode(ci.alphabet, ci.length)
		if err != nil {
			return "", err
		}
		exists, err := ci.runs.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("session code space exhausted after %d attempts", maxCodeAttempts)
}
