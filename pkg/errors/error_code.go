/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"strings"
)

const AibomPrefix = "AIBoMGen."

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00-99), used to distinguish errors from different business interfaces.
   00: General errors
   01: Job / training errors
   02: Store and broker errors
   03: Verifier errors
   04: Crypto errors
   [yyy] Error code range (000-999)
*/

// public: 00xxx
const (
	InternalError         = AibomPrefix + "00001"
	BadRequest            = AibomPrefix + "00002"
	Forbidden             = AibomPrefix + "00003"
	AlreadyExist          = AibomPrefix + "00004"
	NotFound              = AibomPrefix + "00005"
	RequestEntityTooLarge = AibomPrefix + "00006"
	TooManyRequests       = AibomPrefix + "00007"
	Unauthorized          = AibomPrefix + "00009"
)

// job: 01xxx
const (
	InputMissing      = AibomPrefix + "01001"
	SchemaMismatch    = AibomPrefix + "01002"
	ShapeMismatch     = AibomPrefix + "01003"
	NoDeviceAvailable = AibomPrefix + "01004"
)

// store and broker: 02xxx
const (
	StoreUnavailable  = AibomPrefix + "02001"
	StoreRejected     = AibomPrefix + "02002"
	BrokerUnavailable = AibomPrefix + "02003"
)

// verifier: 03xxx
const (
	SignatureInvalid = AibomPrefix + "03001"
	LayoutExpired    = AibomPrefix + "03002"
	LinkMissing      = AibomPrefix + "03003"
	ThresholdUnmet   = AibomPrefix + "03004"
	RuleViolation    = AibomPrefix + "03005"
	BomInvalid       = AibomPrefix + "03006"
)

// crypto: 04xxx
const (
	UnsupportedKey = AibomPrefix + "04001"
)

// returns true if the specified error carries an AIBoMGen reason code.
func IsAibom(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(ReasonForError(err), AibomPrefix)
}

func IsBadRequest(err error) bool {
	return ReasonForError(err) == BadRequest
}

func IsInternal(err error) bool {
	return ReasonForError(err) == InternalError
}

func IsNotFound(err error) bool {
	return ReasonForError(err) == NotFound
}

func IsForbidden(err error) bool {
	return ReasonForError(err) == Forbidden
}

func IsUnauthorized(err error) bool {
	return ReasonForError(err) == Unauthorized
}

func IsAlreadyExist(err error) bool {
	return ReasonForError(err) == AlreadyExist
}

func IsRetryable(err error) bool {
	reason := ReasonForError(err)
	return reason == StoreUnavailable || reason == BrokerUnavailable
}

func IgnoreNotFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func GetErrorCode(err error) string {
	if err == nil || !IsAibom(err) {
		return ""
	}
	return ReasonForError(err)
}

func NewBadRequest(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  BadRequest,
		Message: fmt.Sprintf("Bad request. %s", message),
	}
}

func NewInternalError(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusInternalServerError,
		Reason:  InternalError,
		Message: fmt.Sprintf("Internal error. %s", message),
	}
}

func NewNotFoundWithMessage(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusNotFound,
		Reason:  NotFound,
		Message: message,
	}
}

func NewAlreadyExist(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusConflict,
		Reason:  AlreadyExist,
		Message: message,
	}
}

func NewForbidden(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusForbidden,
		Reason:  Forbidden,
		Message: message,
	}
}

func NewUnauthorized(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusUnauthorized,
		Reason:  Unauthorized,
		Message: message,
	}
}

func NewTooManyRequests(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusTooManyRequests,
		Reason:  TooManyRequests,
		Message: message,
	}
}

func NewRequestEntityTooLargeError(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusRequestEntityTooLarge,
		Reason:  RequestEntityTooLarge,
		Message: message,
	}
}

func NewInputMissing(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusUnprocessableEntity,
		Reason:  InputMissing,
		Message: message,
	}
}

func NewSchemaMismatch(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusUnprocessableEntity,
		Reason:  SchemaMismatch,
		Message: message,
	}
}

func NewShapeMismatch(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusUnprocessableEntity,
		Reason:  ShapeMismatch,
		Message: message,
	}
}

func NewNoDeviceAvailable(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusServiceUnavailable,
		Reason:  NoDeviceAvailable,
		Message: message,
	}
}

func NewStoreUnavailable(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusServiceUnavailable,
		Reason:  StoreUnavailable,
		Message: message,
	}
}

func NewStoreRejected(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadGateway,
		Reason:  StoreRejected,
		Message: message,
	}
}

func NewBrokerUnavailable(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusServiceUnavailable,
		Reason:  BrokerUnavailable,
		Message: message,
	}
}

func NewSignatureInvalid(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  SignatureInvalid,
		Message: message,
	}
}

func NewLayoutExpired(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  LayoutExpired,
		Message: message,
	}
}

func NewLinkMissing(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  LinkMissing,
		Message: message,
	}
}

func NewThresholdUnmet(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  ThresholdUnmet,
		Message: message,
	}
}

func NewRuleViolation(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  RuleViolation,
		Message: message,
	}
}

func NewBomInvalid(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  BomInvalid,
		Message: message,
	}
}

func NewUnsupportedKey(message string) *StatusError {
	return &StatusError{
		Code:    http.StatusBadRequest,
		Reason:  UnsupportedKey,
		Message: message,
	}
}
