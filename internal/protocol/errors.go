// errors.go - Error taxonomy for the floating-point protocol.
//
// Every operation surfaces the first failing check and aborts with no partial
// state change. Callers distinguish retryable conditions (WithdrawalNotReady)
// from permanent rejections (InvalidProof) and duplicates (NullifierAlreadyUsed).

package protocol

import "errors"

var (
	ErrInvalidInstruction        = errors.New("invalid instruction")
	ErrNotRentExempt             = errors.New("not rent exempt")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidCommitment         = errors.New("invalid commitment")
	ErrNullifierAlreadyUsed      = errors.New("nullifier already used")
	ErrPointNotActive            = errors.New("point not active")
	ErrPointLocked               = errors.New("point locked")
	ErrWithdrawalNotReady        = errors.New("withdrawal not ready")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrInvalidProof              = errors.New("invalid proof")
	ErrInvalidRingSignature      = errors.New("invalid ring signature")
	ErrRateLimitExceeded         = errors.New("rate limit exceeded")
	ErrFlashLoanDetected         = errors.New("flash loan detected")
	ErrInvalidAccount            = errors.New("invalid account")
	ErrAccountAlreadyInitialized = errors.New("account already initialized")
	ErrAccountNotInitialized     = errors.New("account not initialized")
)

// errCodes assigns each error kind a stable numeric code for hosts that
// transport errors as integers. Order is part of the external contract.
var errCodes = []error{
	ErrInvalidInstruction,
	ErrNotRentExempt,
	ErrInvalidAmount,
	ErrInvalidCommitment,
	ErrNullifierAlreadyUsed,
	ErrPointNotActive,
	ErrPointLocked,
	ErrWithdrawalNotReady,
	ErrInsufficientBalance,
	ErrUnauthorized,
	ErrInvalidProof,
	ErrInvalidRingSignature,
	ErrRateLimitExceeded,
	ErrFlashLoanDetected,
	ErrInvalidAccount,
	ErrAccountAlreadyInitialized,
	ErrAccountNotInitialized,
}

// ErrCode returns the numeric code for a protocol error, or -1 if the error
// does not wrap one of the protocol error kinds.
func ErrCode(err error) int {
	for i, kind := range errCodes {
		if errors.Is(err, kind) {
			return i
		}
	}
	return -1
}
