package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer tracks how many rules the schedule has activated and
// enforces a maximum.
//
// Activation is monotonic: a rule that fires once stays scheduled for
// every later cycle. A program whose nested rule lists keep unlocking
// therefore grows the per-cycle work without bound; the quota turns that
// into a fatal error instead.
type QuotaEnforcer struct {
	maxActive int // Maximum activated rules; 0 means unlimited
	current   int // Rules activated so far
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
// A limit of 0 disables enforcement.
func NewQuotaEnforcer(maxActive int) *QuotaEnforcer {
	return &QuotaEnforcer{maxActive: maxActive}
}

// Check counts one activation and validates against the limit.
//
// Returns ActiveLimitError if the quota is exceeded.
func (q *QuotaEnforcer) Check(cycle int64) error {
	q.current++
	if q.maxActive > 0 && q.current > q.maxActive {
		return &ActiveLimitError{
			Cycle:  cycle,
			Active: q.current,
			Limit:  q.maxActive,
		}
	}
	return nil
}

// Reset resets the activation counter to 0.
// Used when a new program is loaded.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the number of activations counted.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxActive returns the limit, 0 meaning unlimited.
func (q *QuotaEnforcer) MaxActive() int {
	return q.maxActive
}

// ActiveLimitError is returned when activating a rule would exceed the
// configured maximum number of active rules.
type ActiveLimitError struct {
	Cycle  int64 // Cycle in which the limit was hit (0 during Load)
	Active int   // Activations including the rejected one
	Limit  int   // Maximum allowed active rules
}

// Error implements the error interface.
func (e *ActiveLimitError) Error() string {
	return fmt.Sprintf("cycle %d exceeded max active rules: %d rules > %d limit",
		e.Cycle, e.Active, e.Limit)
}

// IsActiveLimitError returns true if the error is an ActiveLimitError.
// Uses errors.As to handle wrapped errors.
func IsActiveLimitError(err error) bool {
	var le *ActiveLimitError
	return errors.As(err, &le)
}
