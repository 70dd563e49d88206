package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrDecode                = errors.New("datum decode failed")
	ErrWrongVariant          = errors.New("wrong datum variant")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrConstraintUnsatisfied = errors.New("bid constraints unsatisfied")
	ErrReferenceNotFound     = errors.New("reference metadata not found")
	ErrInsufficientFunds     = errors.New("insufficient funds for fee split")
	ErrScriptsNotDeployed    = errors.New("reference scripts not deployed")
	ErrNoMatchingUtxo        = errors.New("no matching utxo")
	ErrSubmission            = errors.New("transaction submission rejected")
	ErrLockHeld              = errors.New("lock already held")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
)
