package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"sleepoutside/internal/remote"
)

var (
	// ErrEmptyCart blocks submission of an order with no items.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrSubmitInProgress rejects a second submit for a session while the
	// first one is still outstanding.
	ErrSubmitInProgress = errors.New("checkout: a submission is already in progress")
	// ErrUnknownField is returned by ValidateField for a name that is not a
	// form field.
	ErrUnknownField = errors.New("checkout: unknown form field")
)

// Violation is one field-level rule failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "checkout: invalid form: " + strings.Join(parts, "; ")
}

// Fields maps field name to message, the shape the form renders from.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Violations))
	for _, v := range e.Violations {
		out[v.Field] = v.Message
	}
	return out
}

// SubmissionError is a failed POST of a valid order. The cart is untouched
// and the user can retry.
type SubmissionError struct {
	Message string
	// Details are messages the order service sent back, keyed by field
	// where it said which one.
	Details map[string]string
	Status  int
	Err     error
}

func (e *SubmissionError) Error() string {
	if d := e.Detail(); d != "" {
		return fmt.Sprintf("checkout: submission failed: %s", d)
	}
	return fmt.Sprintf("checkout: submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Detail flattens Details into one line, sorted by key.
func (e *SubmissionError) Detail() string {
	if len(e.Details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "message" || k == "error" {
			parts = append(parts, e.Details[k])
			continue
		}
		parts = append(parts, k+": "+e.Details[k])
	}
	return strings.Join(parts, "; ")
}

// EmptyCartMessage is shown in place of the form errors for ErrEmptyCart.
const EmptyCartMessage = "Your cart is empty. Add some items before checking out."

// maxDetailRunes caps a plain-text server body quoted back to the user.
const maxDetailRunes = 200

const submitFailedMessage = "We could not place your order. Your cart has been kept, please try again."

// newSubmissionError pulls whatever the server explained out of err.
func newSubmissionError(err error) *SubmissionError {
	se := &SubmissionError{Message: submitFailedMessage, Err: err}
	var te *remote.TransportError
	if !errors.As(err, &te) {
		return se
	}
	se.Status = te.Status
	se.Details = serverDetails(te.Body)
	if d := se.Detail(); d != "" {
		se.Message = submitFailedMessage + " " + d
	}
	return se
}

// serverDetails reads an error body such as {"cardNumber":"Invalid Card
// Number"} or {"message":"..."}. Non-string values and non-JSON bodies are
// kept as text.
func serverDetails(body []byte) map[string]string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		text := string(body)
		if utf8.RuneCountInString(text) > maxDetailRunes {
			text = string([]rune(text)[:maxDetailRunes])
		}
		return map[string]string{"message": text}
	}
	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(raw)
	}
	return out
}
