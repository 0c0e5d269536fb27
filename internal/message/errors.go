// ABOUTME: Sentinel errors for the canonical message model
// ABOUTME: Typed failures surfaced by parsing, validation and formatting

package message

import "errors"

var (
	// ErrInvalidPayload means the raw payload could not be decoded at all.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrEmptyContent means the message carried no usable text.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrMessageTooLarge means the text exceeds the platform's maximum length.
	ErrMessageTooLarge = errors.New("message exceeds platform maximum length")

	// ErrMissingSender means no user identity could be extracted.
	ErrMissingSender = errors.New("message has no sender")

	// ErrPlatformNotSupported means no registered bundle matches the payload.
	ErrPlatformNotSupported = errors.New("platform not supported")
)
