package apierr

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Classify maps any failure onto Info. It is total: nil yields the
// unexpected-error default.
func Classify(err error) Info {
	info := Info{Message: MsgUnexpected, Type: TypeOther, Cause: err}
	if err == nil {
		return info
	}

	var re *ResponseError
	if errors.As(err, &re) && re.Message != "" {
		return classifyResponse(re, info)
	}

	if isNetworkError(err) {
		info.Type = TypeNetwork
		info.Retryable = true
		info.Message = MsgNetwork
		return info
	}

	if msg := err.Error(); msg != "" {
		info.Message = msg
		info.Type = classifyMessage(msg)
		info.Retryable = info.Type.Retryable()
	}
	return info
}

func classifyResponse(re *ResponseError, info Info) Info {
	text := re.Message
	status := re.Status

	switch {
	case status == 429 || containsAny(text, "exceeded the maximum requests per minute", "rate limit", "too many requests"):
		info.Type, info.Retryable, info.Message = TypeRateLimit, true, MsgRateLimit
	case status == 401 || status == 403 || containsAny(text, "unauthorized", "forbidden", "invalid api key", "authentication"):
		info.Type, info.Retryable, info.Message = TypeAuth, false, MsgAuth
	case status == 400 || containsAny(text, "invalid", "validation", "bad request"):
		info.Type, info.Retryable, info.Message = TypeValidation, false, MsgValidation
	case status >= 500:
		info.Type, info.Retryable, info.Message = TypeAPI, true, MsgServer
	case status >= 400:
		info.Type, info.Retryable, info.Message = TypeAPI, false, clientErrorMessage(text)
	default:
		// a structured error on a non-error status keeps the upstream text
		info.Message = text
	}
	return info
}

func clientErrorMessage(text string) string {
	switch {
	case strings.Contains(text, "not found"):
		return MsgNotFound
	case strings.Contains(text, "already exists"):
		return MsgAlreadyExists
	case strings.Contains(text, "required"):
		return MsgMissingField
	case strings.Contains(text, "invalid format"):
		return MsgInvalidFormat
	}
	return MsgInvalidRequest
}

func isNetworkError(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) && ne.Code == CodeNetwork {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return containsAny(err.Error(), "Network Error", "timeout", "connection")
}

func classifyMessage(msg string) Type {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "network", "connection", "timeout"):
		return TypeNetwork
	case containsAny(lower, "auth", "unauthorized"):
		return TypeAuth
	case containsAny(lower, "validation", "invalid"):
		return TypeValidation
	}
	return TypeOther
}
