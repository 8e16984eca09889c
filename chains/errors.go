package chains

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes chain operation failures so callers can map each kind
// to its own response instead of collapsing everything into a generic failure.
type ErrorCode string

const (
	ErrCodeChainNotFound ErrorCode = "CHAIN_NOT_FOUND"
	ErrCodeChainInactive ErrorCode = "CHAIN_INACTIVE"
	ErrCodeAlreadyMember ErrorCode = "ALREADY_MEMBER"
	ErrCodeChainFull     ErrorCode = "CHAIN_FULL"
	ErrCodeNotAMember    ErrorCode = "NOT_A_MEMBER"
	ErrCodeNotYourTurn   ErrorCode = "NOT_YOUR_TURN"
	ErrCodeNotCreator    ErrorCode = "NOT_CREATOR"
	ErrCodeEmptyContent  ErrorCode = "EMPTY_CONTENT"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
)

// ChainError is a typed operational failure of a chain operation.
type ChainError struct {
	Code    ErrorCode
	Message string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match two ChainErrors by code.
func (e *ChainError) Is(target error) bool {
	var ce *ChainError
	if errors.As(target, &ce) {
		return e.Code == ce.Code
	}
	return false
}

func chainNotFound(chainID string) *ChainError {
	return &ChainError{Code: ErrCodeChainNotFound, Message: "chain " + chainID + " does not exist"}
}

func chainInactive(chainID string) *ChainError {
	return &ChainError{Code: ErrCodeChainInactive, Message: "chain " + chainID + " is no longer active"}
}

func alreadyMember(userID string) *ChainError {
	return &ChainError{Code: ErrCodeAlreadyMember, Message: "user " + userID + " is already an active participant"}
}

func chainFull(max int) *ChainError {
	return &ChainError{Code: ErrCodeChainFull, Message: fmt.Sprintf("chain is at its capacity of %d participants", max)}
}

func notAMember(userID string) *ChainError {
	return &ChainError{Code: ErrCodeNotAMember, Message: "user " + userID + " is not an active participant"}
}

func notYourTurn(userID string) *ChainError {
	return &ChainError{Code: ErrCodeNotYourTurn, Message: "it is not user " + userID + "'s turn to pray"}
}

func notCreator(userID string) *ChainError {
	return &ChainError{Code: ErrCodeNotCreator, Message: "user " + userID + " did not create this chain"}
}

func emptyContent() *ChainError {
	return &ChainError{Code: ErrCodeEmptyContent, Message: "prayer content must not be empty"}
}

func invalidInput(msg string) *ChainError {
	return &ChainError{Code: ErrCodeInvalidInput, Message: msg}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a ChainError.
func CodeOf(err error) ErrorCode {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// RosterCorruptError reports a broken roster invariant: the turn positions of
// a chain's active participants were not exactly 0..k-1. It indicates a bug in
// membership serialization, not an operational condition, so it is kept apart
// from ChainError and must never be retried.
type RosterCorruptError struct {
	ChainID   string
	Positions []int
}

func (e *RosterCorruptError) Error() string {
	return fmt.Sprintf("roster corrupt for chain %s: active turn positions %v are not a contiguous permutation", e.ChainID, e.Positions)
}

// IsRosterCorrupt reports whether err is a roster invariant violation.
func IsRosterCorrupt(err error) bool {
	var rc *RosterCorruptError
	return errors.As(err, &rc)
}
