package apierr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// FormatForLogging renders err as a single diagnostic line prefixed with
// "[context] " when context is set.
func FormatForLogging(err error, context string) string {
	prefix := ""
	if context != "" {
		prefix = "[" + context + "] "
	}

	var re *ResponseError
	if errors.As(err, &re) && len(re.Body) > 0 {
		return fmt.Sprintf("%sAPI Error: %d - %s", prefix, re.Status, compactBody(re.Body))
	}
	if err != nil && err.Error() != "" {
		return fmt.Sprintf("%sError: %s", prefix, err.Error())
	}
	raw, _ := json.Marshal(err)
	return fmt.Sprintf("%sUnknown Error: %s", prefix, raw)
}

// Log writes the diagnostic line for err at error level
func Log(logger zerolog.Logger, err error, context string) {
	info := Classify(err)
	logger.Error().
		Str("error_type", string(info.Type)).
		Bool("retryable", info.Retryable).
		Msg(FormatForLogging(err, context))
}

func compactBody(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		quoted, _ := json.Marshal(string(body))
		return string(quoted)
	}
	out, _ := json.Marshal(v)
	return string(out)
}
