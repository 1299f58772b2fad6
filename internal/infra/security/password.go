package security

import (
	"errors"
	"fmt"

	"github.com/nbutton23/zxcvbn-go"
)

var ErrWeakPassword = errors.New("password too weak")

const (
	minPasswordLength = 8
	maxPasswordLength = 72
	minPasswordScore  = 2
)

// ValidatePassword enforces length bounds and a minimum zxcvbn strength
// score before a password is sent upstream. Context inputs (email, name)
// lower the score of passwords derived from them.
func ValidatePassword(password string, userInputs ...string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrWeakPassword, maxPasswordLength)
	}
	if zxcvbn.PasswordStrength(password, userInputs).Score < minPasswordScore {
		return fmt.Errorf("%w: choose a less guessable password", ErrWeakPassword)
	}
	return nil
}
