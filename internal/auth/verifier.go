package auth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "AgentBind-Chain/internal/errors"
)

// Envelope is a signed mutation request. The caller signs the canonical
// message with the wallet key whose address carries the authority; the
// service recovers that address instead of trusting a claimed identity.
type Envelope struct {
	// Method is the operation being authorized, e.g. "update_agent".
	Method string
	// TokenID is the token the mutation targets.
	TokenID *big.Int
	// Value is the new field value: the agent address in 0x-hex form for
	// update_agent, the raw prompt for update_prompt.
	Value string
	// IssuedAt is the unix second the envelope was signed.
	IssuedAt int64
	// Signature is a 65-byte EIP-191 personal-sign signature over
	// CanonicalMessage.
	Signature []byte
}

// CanonicalMessage renders the exact text the wallet signs. The value is
// folded through keccak256 so prompts of any size produce a fixed-width
// message.
func CanonicalMessage(method string, tokenID *big.Int, value string, issuedAt int64) string {
	return fmt.Sprintf("agentbind/v1|%s|%s|%s|%d",
		method,
		tokenID.String(),
		hexutil.Encode(crypto.Keccak256([]byte(value))),
		issuedAt,
	)
}

// Sign produces the envelope signature for the given private key. It is
// used by tests and local tooling; production callers sign in their own
// wallet.
func Sign(env Envelope, key *ecdsa.PrivateKey) ([]byte, error) {
	hash := accounts.TextHash([]byte(CanonicalMessage(env.Method, env.TokenID, env.Value, env.IssuedAt)))
	return crypto.Sign(hash, key)
}

// Verifier recovers and validates the caller behind a signed envelope.
type Verifier struct {
	// MaxAge bounds how far an envelope's IssuedAt may drift from the
	// local clock, in either direction. Zero applies DefaultMaxAge.
	MaxAge time.Duration

	now func() time.Time
}

// DefaultMaxAge is the envelope freshness window applied when none is
// configured.
const DefaultMaxAge = 5 * time.Minute

// NewVerifier constructs a Verifier with the given freshness window.
func NewVerifier(maxAge time.Duration) *Verifier {
	return &Verifier{MaxAge: maxAge}
}

// Recover validates the envelope and returns the signing address.
func (v *Verifier) Recover(env Envelope) (common.Address, error) {
	if env.TokenID == nil {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "token id is required")
	}
	if len(env.Signature) != crypto.SignatureLength {
		return common.Address{}, xerrors.New(xerrors.CodeSignatureInvalid, "signature must be 65 bytes")
	}
	if err := v.checkFreshness(env.IssuedAt); err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, env.Signature)
	// Wallets return V as 27/28; go-ethereum expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(CanonicalMessage(env.Method, env.TokenID, env.Value, env.IssuedAt)))
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeSignatureInvalid, err, "recover signer")
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func (v *Verifier) checkFreshness(issuedAt int64) error {
	maxAge := DefaultMaxAge
	if v != nil && v.MaxAge > 0 {
		maxAge = v.MaxAge
	}
	nowFn := time.Now
	if v != nil && v.now != nil {
		nowFn = v.now
	}
	drift := nowFn().Unix() - issuedAt
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > maxAge {
		return xerrors.New(xerrors.CodeSignatureInvalid, "envelope outside freshness window")
	}
	return nil
}
