package pow

// VerifyResult is the outcome of a single verification.
type VerifyResult struct {
	// Valid reports whether the digest meets the target.
	Valid bool

	// DigestHex is the computed digest in lowercase hex, set whenever the
	// inputs parsed, valid or not. Empty when no digest was computed.
	DigestHex string
}

// Verifier checks claimed nonces. It is synchronous and single-shot.
type Verifier struct {
	identity   *Identity
	difficulty Difficulty
}

// NewVerifier creates a Verifier. A nil identity makes every result invalid.
func NewVerifier(identity *Identity, difficulty Difficulty) *Verifier {
	return &Verifier{identity: identity, difficulty: difficulty}
}

// Verify parses both inputs and checks the nonce.
//
// Verify never fails: unparsable input, or a missing identity, yields an
// invalid result with an empty DigestHex. It is safe to call on every edit of
// a user-typed field.
func (v *Verifier) Verify(taskIDText, nonceText string) VerifyResult {
	taskID, err := ParseU64(taskIDText)
	if err != nil {
		return VerifyResult{}
	}
	nonce, err := ParseU64(nonceText)
	if err != nil {
		return VerifyResult{}
	}
	return v.VerifyNonce(taskID, nonce)
}

// VerifyNonce runs one build, hash and evaluate cycle.
func (v *Verifier) VerifyNonce(taskID, nonce uint64) VerifyResult {
	if v.identity == nil {
		return VerifyResult{}
	}
	digest := Hash(BuildPreimage(*v.identity, taskID, nonce))
	return VerifyResult{
		Valid:     MeetsDifficulty(digest, v.difficulty),
		DigestHex: digest.Hex(),
	}
}
