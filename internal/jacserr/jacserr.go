// Package jacserr defines the cross-cutting error kinds every layer of this
// module surfaces through, so callers can match on Kind with errors.Is
// rather than parsing message text.
package jacserr

import "fmt"

// Kind identifies a class of failure. Names mirror the contract every
// layer of this module is built against, independent of which package
// raised the error.
type Kind string

const (
	SchemaValidation          Kind = "SchemaValidation"
	HashMismatch              Kind = "HashMismatch"
	AgreementHashDrift        Kind = "AgreementHashDrift"
	AgreementUnsigned         Kind = "AgreementUnsigned"
	AgreementAlreadyPresent   Kind = "AgreementAlreadyPresent"
	AgreementNotFound         Kind = "AgreementNotFound"
	WrongPublicKey            Kind = "WrongPublicKey"
	InvalidSignature          Kind = "InvalidSignature"
	AlgorithmMismatch         Kind = "AlgorithmMismatch"
	DilithiumVersionMismatch  Kind = "DilithiumVersionMismatch"
	ReservedFieldInSignature  Kind = "ReservedFieldInSignatureInput"
	IdentityMismatch          Kind = "IdentityMismatch"
	ImmutableLevel            Kind = "ImmutableLevel"
	AttachmentHashMismatch    Kind = "AttachmentHashMismatch"
	FingerprintMismatch       Kind = "FingerprintMismatch"
	WrongPasswordOrCorrupted Kind = "WrongPasswordOrCorrupted"
	CiphertextTooShort       Kind = "CiphertextTooShort"
	ReplayWindowExceeded      Kind = "ReplayWindowExceeded"
	StorageFailure            Kind = "StorageFailure"
	Bootstrap                 Kind = "Bootstrap"
	Unverified                Kind = "Unverified"
)

// Error is the concrete error type every layer returns. DocumentID and Key
// identify the offending document where applicable; BlockedAgentIDs carries
// the offending participant set for AgreementUnsigned.
type Error struct {
	Kind            Kind
	DocumentID      string
	Key             string
	BlockedAgentIDs []string
	Err             error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("jacs: %s", e.Kind)
	if e.DocumentID != "" {
		msg += fmt.Sprintf(" (document %s)", e.DocumentID)
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %s)", e.Key)
	}
	if len(e.BlockedAgentIDs) > 0 {
		msg += fmt.Sprintf(" (blocked agents %v)", e.BlockedAgentIDs)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, jacserr.New(kind, nil)) style matching on Kind
// alone, ignoring the other fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithDocument attaches a document id to the error, for use in a fluent
// chain: jacserr.New(jacserr.HashMismatch, err).WithDocument(id).
func (e *Error) WithDocument(id string) *Error {
	e.DocumentID = id
	return e
}

// WithKey attaches an index key (id:version) to the error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithBlockedAgents attaches the offending participant id list.
func (e *Error) WithBlockedAgents(ids []string) *Error {
	e.BlockedAgentIDs = ids
	return e
}
