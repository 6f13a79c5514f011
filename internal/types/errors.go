package types

// Stable error codes surfaced to API callers. Codes group into validation,
// authorization, state, timing and arithmetic failures; every operation
// aborts before mutating anything when one of these is raised.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnauthorizedParty  = "UNAUTHORIZED_PARTY"
	CodeInvalidState       = "INVALID_STATE"
	CodeTimingViolation    = "TIMING_VIOLATION"
	CodeCalculationError   = "CALCULATION_OVERFLOW"
	CodeInsufficientMargin = "INSUFFICIENT_MARGIN"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
)

// DomainError is an error with a stable, enumerable code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

var (
	ErrInvalidOptionKind = &DomainError{CodeValidationFailed, "invalid option kind (must be 0 for Call or 1 for Put)"}
	ErrZeroPremium       = &DomainError{CodeValidationFailed, "premium must be greater than zero"}
	ErrZeroStrike        = &DomainError{CodeValidationFailed, "strike must be greater than zero"}
	ErrZeroMargin        = &DomainError{CodeValidationFailed, "initial margin must be greater than zero"}
	ErrZeroResellPrice   = &DomainError{CodeValidationFailed, "resell price must be greater than zero"}
	ErrUnderlyingTooLong = &DomainError{CodeValidationFailed, "underlying symbol too long (max 32 characters)"}
	ErrInvalidPrice      = &DomainError{CodeValidationFailed, "reference currency price must be greater than zero"}

	ErrUnauthorized = &DomainError{CodeUnauthorizedParty, "caller is not authorized to perform this action"}

	ErrNotListed    = &DomainError{CodeInvalidState, "contract is not available for purchase"}
	ErrNotOwned     = &DomainError{CodeInvalidState, "contract is not owned"}
	ErrCannotDelist = &DomainError{CodeInvalidState, "only listed contracts can be delisted"}

	ErrPastInitiation       = &DomainError{CodeTimingViolation, "initiation date cannot be in the past for production contracts"}
	ErrContractExpired      = &DomainError{CodeTimingViolation, "contract has expired"}
	ErrContractNotExpired   = &DomainError{CodeTimingViolation, "contract has not expired yet"}
	ErrExerciseBeforeExpiry = &DomainError{CodeTimingViolation, "cannot exercise before expiry date (European option)"}
	ErrSettlementTooSoon    = &DomainError{CodeTimingViolation, "settlement can only occur once per day"}

	ErrCalculationOverflow = &DomainError{CodeCalculationError, "calculation overflow occurred"}
	ErrInsufficientMargin  = &DomainError{CodeInsufficientMargin, "insufficient margin for settlement"}
	ErrInsufficientFunds   = &DomainError{CodeInsufficientFunds, "insufficient account balance for transfer"}
)
