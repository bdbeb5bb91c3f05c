package referral

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/pkg/errors"
)

const (
	// codeAlphabet leaves out the ambiguous 0/O, 1/I pairs.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8

	// maxGenerationAttempts bounds the regenerate-on-collision loop. The
	// keyspace is 32^8 so exhausting this is near-impossible, but handled.
	maxGenerationAttempts = 10
)

// NormalizeCode maps a user-typed code to its canonical form; code lookups
// are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// GetOrCreateCode returns the owner's durable active code for the program
// scope, issuing a new one if none exists. Issuance is an insert racing a
// uniqueness constraint; a collision on the code value is retried with a
// fresh code, a collision on the owner scope means a concurrent call won and
// its code is returned instead.
func (svc *Service) GetOrCreateCode(ctx context.Context, ownerID, programID string) (Code, error) {
	if existing, err := svc.repo.GetActiveOwnerCode(ctx, ownerID, programID); err == nil {
		return existing, nil
	} else if err != ErrCodeNotFound {
		return Code{}, errors.Wrap(err, "finding owner code")
	}

	for attempt := 0; attempt < maxGenerationAttempts; attempt++ {
		value, err := generateCode()
		if err != nil {
			return Code{}, err
		}
		code, err := svc.repo.CreateCode(ctx, Code{
			Code:      value,
			OwnerID:   ownerID,
			ProgramID: programID,
			IsActive:  true,
			CreatedAt: svc.now(),
		})
		switch err {
		case nil:
			return code, nil
		case ErrCodeExists:
			continue // regenerate
		case ErrOwnerHasCode:
			// a concurrent call created the owner's code first; return it
			return svc.repo.GetActiveOwnerCode(ctx, ownerID, programID)
		default:
			return Code{}, errors.Wrap(err, "creating code")
		}
	}
	return Code{}, ErrCodeGenerationExhausted
}

// ValidateCode resolves a user-typed code for use with the given program.
// It fails with ErrCodeNotFound, ErrCodeInactive or ErrWrongProgram; a
// program-scoped code is never accepted for another program, a global code
// is accepted anywhere.
func (svc *Service) ValidateCode(ctx context.Context, code, programID string) (Code, error) {
	c, err := svc.repo.GetCode(ctx, NormalizeCode(code))
	if err != nil {
		return Code{}, err
	}
	if !c.IsActive {
		return Code{}, ErrCodeInactive
	}
	if !c.IsGlobal() && c.ProgramID != programID {
		return Code{}, ErrWrongProgram
	}
	return c, nil
}

// GetCode looks a code up by value, active or not.
func (svc *Service) GetCode(ctx context.Context, code string) (Code, error) {
	return svc.repo.GetCode(ctx, NormalizeCode(code))
}

// DeactivateCode is idempotent: deactivating an already-inactive code is a no-op.
func (svc *Service) DeactivateCode(ctx context.Context, code string) (Code, error) {
	return svc.repo.DeactivateCode(ctx, NormalizeCode(code))
}

// ShareLink renders the referrer-facing share URL for a code.
// Pure string templating, no state.
func (svc *Service) ShareLink(code string) string {
	return svc.conf.FrontendBaseURL + svc.conf.ShareLinkPath + "?ref=" + NormalizeCode(code)
}
