// Package apperr defines the error taxonomy shared by the order core.
// Handlers map these to HTTP statuses; the core never formats UI copy.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidTransition    Code = "invalid_transition"
	CodeForbidden            Code = "forbidden"
	CodeValidation           Code = "validation_error"
	CodeNotAnOffer           Code = "not_an_offer"
	CodeOfferAlreadyConsumed Code = "offer_already_consumed"
	CodeNotAParticipant      Code = "not_a_participant"
	CodeSelfAcceptance       Code = "self_acceptance"
	CodeNotFound             Code = "not_found"
	CodeStorageFailure       Code = "storage_failure"
	CodeConflict             Code = "persistence_conflict"
)

type Error struct {
	Code    Code
	Message string
	Cause   error

	// Set on invalid-transition errors so callers can see which state
	// rejected which event.
	State string
	Event string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func InvalidTransition(state, event string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s while order is %s", event, state),
		State:   state,
		Event:   event,
	}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func NotAnOffer(messageID string) *Error {
	return &Error{Code: CodeNotAnOffer, Message: fmt.Sprintf("message %s is not an offer", messageID)}
}

func OfferAlreadyConsumed(messageID string) *Error {
	return &Error{Code: CodeOfferAlreadyConsumed, Message: fmt.Sprintf("offer %s has already been accepted", messageID)}
}

func NotAParticipant() *Error {
	return &Error{Code: CodeNotAParticipant, Message: "not a participant in this conversation"}
}

func SelfAcceptance() *Error {
	return &Error{Code: CodeSelfAcceptance, Message: "cannot accept your own offer"}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func StorageFailure(message string, cause error) *Error {
	return &Error{Code: CodeStorageFailure, Message: message, Cause: cause}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// CodeOf extracts the taxonomy code from err, unwrapping as needed.
func CodeOf(err error) (Code, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}

func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// HTTPStatus maps a core error to the status the presentation layer
// should answer with. Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	code, ok := CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case CodeValidation, CodeNotAnOffer, CodeSelfAcceptance:
		return http.StatusBadRequest
	case CodeForbidden, CodeNotAParticipant:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition, CodeOfferAlreadyConsumed, CodeConflict:
		return http.StatusConflict
	case CodeStorageFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
