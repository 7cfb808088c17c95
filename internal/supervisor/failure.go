package supervisor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
	"github.com/pavelc4/aether-fetch/internal/resource"
	"github.com/pavelc4/aether-fetch/pkg/utils"
)

// Kind classifies why a task did not complete. The set is closed.
type Kind string

const (
	KindInvalidInput          Kind = "invalid_input"
	KindRateLimited           Kind = "rate_limited"
	KindResourceExhausted     Kind = "resource_exhausted"
	KindExtractionError       Kind = "extraction_error"
	KindFileTooLarge          Kind = "file_too_large"
	KindExceedsTransportLimit Kind = "exceeds_transport_limit"
	KindTimedOut              Kind = "timed_out"
	KindCancelled             Kind = "cancelled"
)

// Kinds lists every failure kind, in severity-neutral order.
var Kinds = []Kind{
	KindInvalidInput,
	KindRateLimited,
	KindResourceExhausted,
	KindExtractionError,
	KindFileTooLarge,
	KindExceedsTransportLimit,
	KindTimedOut,
	KindCancelled,
}

func (k Kind) String() string {
	return string(k)
}

// Failure is the terminal error of a task. Message is safe to show to the
// requesting user; the wrapped cause is meant for operator logs only.
type Failure struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Reason     resource.Reason
	Suggestion string
	SizeBytes  int64
	Limit      int64

	cause error
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func invalidInput(err error) *Failure {
	msg := "That doesn't look like a valid link. Send a full http(s) URL."
	switch {
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		msg = "This site is not supported. Send a YouTube, TikTok or Instagram link."
	case errors.Is(err, errInvalidQuality):
		msg = "Unknown quality. Choose 360p, 480p or audio."
	}
	return &Failure{Kind: KindInvalidInput, Message: msg, cause: err}
}

// RateLimited is the failure for a denied request that is answered without
// starting a task.
func RateLimited(retryAfter time.Duration) *Failure {
	return rateLimited(retryAfter)
}

func rateLimited(retryAfter time.Duration) *Failure {
	secs := int(math.Ceil(retryAfter.Seconds()))
	return &Failure{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("Too many requests. Try again in %d seconds.", max(secs, 1)),
		RetryAfter: retryAfter,
	}
}

func resourceExhausted(err error) *Failure {
	f := &Failure{
		Kind:    KindResourceExhausted,
		Message: "The server is busy right now. Please try again in a minute.",
		Reason:  resource.GlobalLimitReached,
		cause:   err,
	}
	var rej *resource.Rejection
	if errors.As(err, &rej) {
		f.Reason = rej.Reason
		if rej.Reason == resource.UserLimitReached {
			f.Message = fmt.Sprintf("You already have %d downloads running. Wait for one to finish.", rej.InUse)
		}
	}
	return f
}

func extractionFailed(err error) *Failure {
	return &Failure{
		Kind:    KindExtractionError,
		Message: "Could not fetch this media. It may be private or removed.",
		cause:   err,
	}
}

func fileTooLarge(size, limit int64) *Failure {
	return &Failure{
		Kind:      KindFileTooLarge,
		Message:   fmt.Sprintf("The file exceeds the %s download limit.", utils.FormatFileSize(limit)),
		SizeBytes: size,
		Limit:     limit,
	}
}

func exceedsTransportLimit(size, limit int64, q provider.Quality) *Failure {
	f := &Failure{
		Kind:       KindExceedsTransportLimit,
		Message:    fmt.Sprintf("The file is %s but uploads are limited to %s.", utils.FormatFileSize(size), utils.FormatFileSize(limit)),
		Suggestion: suggestionFor(q),
		SizeBytes:  size,
		Limit:      limit,
	}
	if f.Suggestion != "" {
		f.Message += " " + f.Suggestion
	}
	return f
}

// suggestionFor points at the next smaller quality, if there is one.
func suggestionFor(q provider.Quality) string {
	switch q {
	case provider.Quality480p:
		return "Try 360p or audio only."
	case provider.Quality360p:
		return "Try audio only."
	default:
		return ""
	}
}

func timedOut(limit time.Duration, err error) *Failure {
	return &Failure{
		Kind:    KindTimedOut,
		Message: fmt.Sprintf("The download took longer than %s and was stopped.", utils.FormatDuration(limit)),
		cause:   err,
	}
}

func cancelled(err error) *Failure {
	return &Failure{Kind: KindCancelled, Message: "Download cancelled.", cause: err}
}
