package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotAuthenticated = errors.New("login required to check out")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrSubmitInProgress = errors.New("order submission already in progress")
	ErrInvalidState     = errors.New("operation not allowed in current checkout state")
	ErrOrderTimeout     = errors.New("order service did not respond in time")
	ErrNoOrder          = errors.New("no confirmed order")
)

// ValidationError maps form fields to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid shipping address: " + strings.Join(parts, "; ")
}
