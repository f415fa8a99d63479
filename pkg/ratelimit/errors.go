// Copyright 2026 The Telefind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"errors"
)

// Common errors.
var (
	// ErrQuotaExceeded is returned when a quota ceiling is reached.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidIdentifier is returned when an identifier is empty.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrStoreUnavailable is returned when the store is unavailable.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// QuotaError carries the denial details of a failed check.
type QuotaError struct {
	// Message is a human-readable error message.
	Message string

	// Result contains the detailed rate limit check result.
	Result *CheckResult
}

// Error returns the error message.
func (e *QuotaError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// NewQuotaError creates a QuotaError from a CheckResult.
func NewQuotaError(result *CheckResult) *QuotaError {
	message := "quota exceeded"
	if result != nil && result.Reason != "" {
		message = result.Reason
	}
	return &QuotaError{
		Message: message,
		Result:  result,
	}
}

// IsQuotaError checks if an error is a quota error.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return true
	}
	return errors.Is(err, ErrQuotaExceeded)
}

// GetQuotaResult extracts the CheckResult from a quota error.
// Returns nil if the error is not a QuotaError.
func GetQuotaResult(err error) *CheckResult {
	if err == nil {
		return nil
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.Result
	}
	return nil
}
