package identity

import "fmt"

// VerificationError reports that an identity check could not be carried
// out, as opposed to being carried out with a negative result. Callers
// that receive one must not treat the candidate as either matching or
// mismatching.
type VerificationError struct {
	Op  string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("identity verification inconclusive: %s: %v", e.Op, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// VerifyMatchingIdentity reports whether the binary at candidatePath was
// sealed by the same publisher key as the binary at selfPath.
//
// The verdict is strictly three-valued:
//
//   - (true, nil): candidate carries a valid seal from the same publisher.
//   - (false, nil): candidate is unsigned, carries an invalid seal, or was
//     sealed by a different publisher. Conclusive mismatch.
//   - (false, *VerificationError): one of the binaries could not be read,
//     or our own seal is unreadable. No verdict; the caller must not fall
//     back to treating this as a mismatch.
func VerifyMatchingIdentity(selfPath, candidatePath string) (bool, error) {
	own, err := ReadSeal(selfPath)
	if err != nil {
		// Losing track of our own identity is never a verdict about
		// the candidate.
		return false, &VerificationError{Op: "read own seal", Err: err}
	}

	candidate, valid, err := VerifySeal(candidatePath)
	if err != nil {
		return false, &VerificationError{Op: "read candidate", Err: err}
	}
	if !valid {
		return false, nil
	}

	return candidate.PublicKey == own.PublicKey, nil
}
