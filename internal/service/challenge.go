package service

import (
	"context"

	"github.com/amirk1998/serendib-banking/pkg/validator"
)

type ChallengeOutcome int

const (
	OutcomeVerified ChallengeOutcome = iota
	OutcomeExpired
	OutcomeExhausted
)

func (o ChallengeOutcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeExpired:
		return "expired"
	default:
		return "exhausted"
	}
}

type Rejection int

const (
	RejectMalformed Rejection = iota
	RejectMismatch
)

// Prompter collects guesses for a challenge. Reject is told why a guess
// was refused before the next Prompt.
type Prompter interface {
	Prompt(attempt, maxAttempts int) (string, error)
	Reject(reason Rejection)
}

// VerifyChallenge runs the attempt loop for the code issued to sessionKey.
// Guesses that are not six digits are refused without using an attempt.
// The loop stops at the first expired check, the first match, or after
// maxAttempts mismatches. Locking on OutcomeExhausted is up to the caller.
func (s *OTPService) VerifyChallenge(ctx context.Context, sessionKey string, maxAttempts int, p Prompter) (ChallengeOutcome, error) {
	if maxAttempts <= 0 {
		maxAttempts = s.policy.MaxOTPAttempts
	}

	attempt := 1
	for attempt <= maxAttempts {
		if err := ctx.Err(); err != nil {
			return OutcomeExhausted, err
		}

		guess, err := p.Prompt(attempt, maxAttempts)
		if err != nil {
			return OutcomeExhausted, err
		}

		if !validator.IsOTPFormat(guess) {
			p.Reject(RejectMalformed)
			continue
		}

		if s.IsExpired(ctx, sessionKey) {
			return OutcomeExpired, nil
		}
		if s.Validate(ctx, sessionKey, guess) {
			return OutcomeVerified, nil
		}

		p.Reject(RejectMismatch)
		attempt++
	}

	return OutcomeExhausted, nil
}
