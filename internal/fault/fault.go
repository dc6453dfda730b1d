// Package fault classifies pipeline failures into the kinds the bot reacts to.
// Every external-call failure is converted into a *Error at the component
// boundary, so callers only ever switch on Kind.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the coarse failure class.
type Kind int

const (
	// Internal is anything unexpected. Logged with detail, shown generically.
	Internal Kind = iota
	// Validation covers bad user input (oversized or unsupported audio).
	Validation
	// Transient failures are retried once (timeouts, rate limits, outages).
	Transient
	// Permanent failures are never retried (quota, invalid input).
	Permanent
	// SessionExpired means the user pressed a button for a gone session.
	SessionExpired
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case SessionExpired:
		return "session_expired"
	default:
		return "internal"
	}
}

// Reasons attached to errors. Free-form strings are allowed too.
const (
	ReasonTooLarge          = "too_large"
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonMissingContent    = "missing_content"
	ReasonRateLimited       = "rate_limited"
	ReasonTimeout           = "timeout"
	ReasonUnavailable       = "service_unavailable"
	ReasonQuota             = "quota"
	ReasonInvalidAudio      = "invalid_audio"
	ReasonInvalidRequest    = "invalid_request"
	ReasonInvalidResponse   = "invalid_response"
	ReasonExpired           = "expired"
)

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Reason string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += "/" + e.Reason
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, reason, op string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Op: op, Err: err}
}

// Transientf is a shorthand for a retryable failure.
func Transientf(reason, op, format string, args ...any) *Error {
	return New(Transient, reason, op, fmt.Errorf(format, args...))
}

// Permanentf is a shorthand for a non-retryable failure.
func Permanentf(reason, op, format string, args ...any) *Error {
	return New(Permanent, reason, op, fmt.Errorf(format, args...))
}

// FromHTTPStatus classifies a failed HTTP exchange with a remote API.
func FromHTTPStatus(status int, op string, err error) *Error {
	switch {
	case status == 429:
		return New(Transient, ReasonRateLimited, op, err)
	case status == 408 || status == 504:
		return New(Transient, ReasonTimeout, op, err)
	case status >= 500:
		return New(Transient, ReasonUnavailable, op, err)
	case status == 402:
		return New(Permanent, ReasonQuota, op, err)
	case status >= 400:
		return New(Permanent, ReasonInvalidRequest, op, err)
	}
	return New(Internal, "", op, err)
}

// KindOf returns the kind of err. Context deadline errors count as transient
// timeouts; everything unclassified is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Internal
}

// ReasonOf returns the reason string of a classified error, or "".
func ReasonOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ""
}

// IsRetryable reports whether err is worth one more attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == Transient
}

// UserMessage renders a plain-language description for the chat user.
// It never includes the wrapped cause.
func UserMessage(err error) string {
	reason := ReasonOf(err)
	switch KindOf(err) {
	case Validation:
		switch reason {
		case ReasonTooLarge:
			return "❌ The audio file is too large. Please send a shorter recording."
		case ReasonUnsupportedFormat:
			return "❌ Unsupported audio format. Please send OGG, MP3 or WAV audio."
		case ReasonMissingContent:
			return "❌ No audio found in the message. Please send a voice message."
		}
		return "❌ The audio could not be accepted. Please try another recording."
	case Transient:
		if reason == ReasonTimeout {
			return "⌛ The service took too long to respond. Please try again in a moment."
		}
		return "⚠️ The service is busy right now. Please try again in a moment."
	case Permanent:
		switch reason {
		case ReasonQuota:
			return "❌ The processing quota is exhausted. Please try again later."
		case ReasonInvalidAudio:
			return "❌ The audio could not be recognized. Please resend a clearer recording."
		case ReasonInvalidResponse:
			return "❌ The AI service returned an unusable answer. Please try another option."
		}
		return "❌ The request could not be processed. Please try another option."
	case SessionExpired:
		return "⌛ Session expired, please resend the audio."
	}
	return "❌ Something went wrong on our side. Please try again."
}
