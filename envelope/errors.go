package envelope

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	// ErrConfiguration reports a missing or invalid provider setting, such as
	// an empty KMS key id. It is returned before any KMS call is made.
	ErrConfiguration = errors.New("envelope: configuration error")

	// ErrKeyService matches every *KeyServiceError.
	ErrKeyService = errors.New("envelope: key service error")

	// ErrKeyRejected matches key service errors where KMS refused the request
	// because of the key or the encryption context (tampered metadata, wrong
	// key, access denied, disabled or missing key).
	ErrKeyRejected = errors.New("envelope: key service rejected request")

	// ErrEnvelopeFormat matches every *FormatError.
	ErrEnvelopeFormat = errors.New("envelope: malformed envelope")

	// ErrProgrammer is the parent of caller contract violations.
	ErrProgrammer = errors.New("envelope: programmer error")

	// ErrCipherFinalized is returned by Update or Final on a finalized Cipher.
	ErrCipherFinalized = fmt.Errorf("%w: cipher already finalized", ErrProgrammer)

	// ErrInvalidCiphertext is returned when ciphertext is not block aligned or
	// carries invalid padding.
	ErrInvalidCiphertext = errors.New("envelope: invalid ciphertext")
)

// FormatError describes an envelope field that is missing or cannot be decoded.
type FormatError struct {
	Field string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("envelope field %s: %v", e.Field, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrEnvelopeFormat }

func formatErr(field string, err error) error {
	return &FormatError{Field: field, Err: err}
}

// KeyServiceError wraps a failed KMS call. Err is the SDK error verbatim, so
// errors.As into smithy.APIError or the kms/types exceptions keeps working.
type KeyServiceError struct {
	Op   string // "GenerateDataKey" or "Decrypt"
	Code string // KMS error code, empty for transport failures
	Err  error
}

func (e *KeyServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("KMS %s (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("KMS %s: %v", e.Op, e.Err)
}

func (e *KeyServiceError) Unwrap() error { return e.Err }

func (e *KeyServiceError) Is(target error) bool {
	switch target {
	case ErrKeyService:
		return true
	case ErrKeyRejected:
		return e.Rejected()
	}
	return false
}

// Rejected reports whether KMS refused the request on its merits: the
// ciphertext or encryption context does not verify, or the caller may not
// use the key. Retrying a rejected request does not help.
func (e *KeyServiceError) Rejected() bool {
	_, ok := rejectedCodes[e.Code]
	return ok
}

// Retryable reports whether the failure looks transient: throttling, an
// unavailable key, KMS internal errors or transport failures. A canceled
// context is never retryable. The provider never retries itself.
func (e *KeyServiceError) Retryable() bool {
	if e.Rejected() || e.Code == CodeInvalidResponse {
		return false
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	if _, ok := retryableCodes[e.Code]; ok {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	// no API error at all: the request never got a KMS answer
	return true
}

var rejectedCodes = map[string]struct{}{
	"InvalidCiphertextException": {},
	"IncorrectKeyException":      {},
	"AccessDeniedException":      {},
	"NotFoundException":          {},
	"DisabledException":          {},
	"InvalidKeyUsageException":   {},
	"KMSInvalidStateException":   {},
	"InvalidGrantTokenException": {},
}

var retryableCodes = map[string]struct{}{
	"ThrottlingException":        {},
	"LimitExceededException":     {},
	"KMSInternalException":       {},
	"DependencyTimeoutException": {},
	"KeyUnavailableException":    {},
}

// CodeInvalidResponse marks a KMS answer the provider could not use, such as
// an empty CiphertextBlob or a data key of the wrong size. It is neither
// rejected nor retryable.
const CodeInvalidResponse = "InvalidResponse"

func keyServiceErr(op string, err error) error {
	kerr := &KeyServiceError{Op: op, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kerr.Code = apiErr.ErrorCode()
	}
	return kerr
}
