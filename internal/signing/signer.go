package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"hostplane/internal/approvals"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrorSecretTooShort = errors.New("secret_too_short")
)

const (
	minimumSecretLength = 32
	keyDerivationInfo   = "hostplane/decision-signing/v1"
)

// Signer produces and verifies the keyed integrity tag carried by every
// decision record, allowing later detection of storage-level tampering
// without trusting the storage layer. The master secret is injected once
// at process start and never leaves this struct.
type Signer struct {
	key []byte
}

// New derives the decision signing key from the master secret via
// HKDF-SHA256 so a leak of a derived key never exposes the master secret
func New(masterSecret []byte) (*Signer, error) {
	if len(masterSecret) < minimumSecretLength {
		return nil, fmt.Errorf("failed to receive a master secret of at least %v bytes: %w", minimumSecretLength, ErrorSecretTooShort)
	}
	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(keyDerivationInfo))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return &Signer{key: key}, nil
}

// SignDecision computes the signature over the canonical encoding of the
// decision tuple; the timestamp is normalised to UTC at nanosecond
// precision so that the stored and recomputed encodings always agree
func (s *Signer) SignDecision(requestId, approverId string, decision approvals.DecisionType, timestamp time.Time) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonicalDecisionEncoding(requestId, approverId, decision, timestamp)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDecision recomputes the signature of a stored decision and
// compares it in constant time
func (s *Signer) VerifyDecision(requestId string, decision approvals.Decision) bool {
	expected := s.SignDecision(requestId, decision.ApproverId, decision.Decision, decision.Timestamp)
	return hmac.Equal([]byte(expected), []byte(decision.Signature))
}

func canonicalDecisionEncoding(requestId, approverId string, decision approvals.DecisionType, timestamp time.Time) string {
	return strings.Join([]string{
		requestId,
		approverId,
		string(decision),
		timestamp.UTC().Format(time.RFC3339Nano),
	}, "\n")
}
