package intake

import (
	"errors"
	"fmt"

	"github.com/healthadvocate/advocate/internal/platform/notification"
)

var (
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
	ErrSessionNotFound      = errors.New("intake session not found")
	ErrDocumentNotFound     = errors.New("document not found")
)

const genericSubmitFailure = "There was an error submitting your claim. Please try again."

type UnknownSectionError struct {
	Section string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("unknown form section %q", e.Section)
}

type UnknownFieldError struct {
	Section string
	Field   string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q in %s section", e.Field, e.Section)
}

// ValidationError is a required field left empty. Nothing was written.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "required field missing: " + e.Field
}

// LookupError is a failed profile lookup. Nothing was written.
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string {
	return "Error checking existing profile: " + e.Err.Error()
}

func (e *LookupError) Unwrap() error { return e.Err }

// AuthError is a failed profile creation. No claim was written.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "Could not create patient profile: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// ClaimWriteError is a failed claim insert. A profile created by the same
// submission is left in place.
type ClaimWriteError struct {
	Err error
}

func (e *ClaimWriteError) Error() string {
	return "Failed to create claim: " + e.Err.Error()
}

func (e *ClaimWriteError) Unwrap() error { return e.Err }

// DocumentWriteError is a failed document record insert. It is logged and
// never fails the submission.
type DocumentWriteError struct {
	DocumentName string
	Err          error
}

func (e *DocumentWriteError) Error() string {
	return fmt.Sprintf("record document %q: %v", e.DocumentName, e.Err)
}

func (e *DocumentWriteError) Unwrap() error { return e.Err }

// HistoryWriteError is a failed history insert. It is logged and never fails
// the submission.
type HistoryWriteError struct {
	Err error
}

func (e *HistoryWriteError) Error() string {
	return "record claim history: " + e.Err.Error()
}

func (e *HistoryWriteError) Unwrap() error { return e.Err }

// TooManyFilesError rejects a whole upload batch.
type TooManyFilesError struct {
	Max      int
	Current  int
	Incoming int
}

func (e *TooManyFilesError) Error() string {
	return fmt.Sprintf("maximum %d files allowed, have %d, adding %d", e.Max, e.Current, e.Incoming)
}

// FailureNotice is the notice shown for a failed submission.
func FailureNotice(err error) notification.Notice {
	var verr *ValidationError
	var aerr *AuthError
	switch {
	case errors.As(err, &verr):
		return notification.Failure("Required Field Missing", "Please fill in: "+verr.Field)
	case errors.As(err, &aerr):
		return notification.Failure("Authentication Error", "Could not submit claim")
	}
	msg := genericSubmitFailure
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return notification.Failure("Submission Error", msg)
}

// SuccessNotice is the notice shown once the claim is stored.
func SuccessNotice(shortID string) notification.Notice {
	return notification.Info("Claim Submitted Successfully", "Your claim has been submitted with ID: "+shortID+"...")
}
