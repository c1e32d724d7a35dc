// ZeroERP - Inventory, Orders, and Billing for Small Teams
// Copyright 2026 Aren Garro (Aren-Garro)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Aren-Garro/ZeroERP

package api

// API error codes. Stable identifiers clients can branch on; the
// accompanying message is for humans.
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeDeliveryFailed  = "DELIVERY_FAILED"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeTooManyRequests = "RATE_LIMITED"
)
