package stt

import (
	"errors"
	"fmt"
)

// Error codes carried on client-facing error messages.
const (
	CodeConfiguration     = "configuration_error"
	CodeUnsupportedMode   = "unsupported_mode"
	CodeUpstreamHandshake = "upstream_handshake"
	CodeUpstreamTransport = "upstream_transport"
	CodeMalformedPayload  = "malformed_payload"
	CodeInternal          = "internal"
)

// MissingAPIKeyMessage is reported when DEEPGRAM_API_KEY is absent.
const MissingAPIKeyMessage = "Deepgram API key not configured. Add DEEPGRAM_API_KEY to your .env file."

// ConfigurationError means a required credential or setting is absent.
type ConfigurationError struct {
	Setting string
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }
func (e *ConfigurationError) Code() string  { return CodeConfiguration }

// NewMissingCredentialsError reports a missing Deepgram API key.
func NewMissingCredentialsError() *ConfigurationError {
	return &ConfigurationError{Setting: "DEEPGRAM_API_KEY", Message: MissingAPIKeyMessage}
}

// UnsupportedModeError means contradictory session parameters.
type UnsupportedModeError struct {
	Reason string
}

func (e *UnsupportedModeError) Error() string {
	return "unsupported transcription mode: " + e.Reason
}
func (e *UnsupportedModeError) Code() string { return CodeUnsupportedMode }

// UpstreamHandshakeError means the provider rejected the connection.
type UpstreamHandshakeError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamHandshakeError) Error() string {
	msg := "speech service rejected the connection"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	switch e.StatusCode {
	case 401, 403:
		msg += ": check DEEPGRAM_API_KEY"
	case 429:
		msg += ": rate limited or out of quota"
	case 400:
		msg += ": unsupported stream parameters"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}
func (e *UpstreamHandshakeError) Code() string  { return CodeUpstreamHandshake }
func (e *UpstreamHandshakeError) Unwrap() error { return e.Err }

// UpstreamTransportError means the socket failed after (or while) connecting.
type UpstreamTransportError struct {
	Err error
}

func (e *UpstreamTransportError) Error() string {
	return "speech service connection lost: " + e.Err.Error()
}
func (e *UpstreamTransportError) Code() string  { return CodeUpstreamTransport }
func (e *UpstreamTransportError) Unwrap() error { return e.Err }

// MalformedPayloadError means an upstream payload could not be parsed.
type MalformedPayloadError struct {
	Size int
	Err  error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed upstream payload (%d bytes): %v", e.Size, e.Err)
}
func (e *MalformedPayloadError) Code() string  { return CodeMalformedPayload }
func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// ErrorCode returns the client-facing code for err.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeInternal
}
