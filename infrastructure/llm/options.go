package llm

import (
	"fmt"
	"net/url"
	"time"
)

// Valid ranges for request parameters shared by all providers.
const (
	MinTemperature = 0.0
	// MaxTemperature accommodates providers like Gemini that accept up to 2.0.
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 10 * time.Minute

	// DefaultMaxTokens caps completions when the caller does not set
	// "max_tokens". Bedrock and Anthropic both require an explicit limit.
	DefaultMaxTokens = 1024

	// charsPerToken is the heuristic used when a provider omits usage data.
	charsPerToken = 4
)

// EstimateTokens approximates the token count of text at roughly four
// characters per token.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// ExtractOptionalInt returns opts[key] when it is an int accepted by
// validator, and defaultVal otherwise.
func ExtractOptionalInt(opts map[string]any, key string, defaultVal int, validator func(int) bool) int {
	v, ok := opts[key].(int)
	if !ok || (validator != nil && !validator(v)) {
		return defaultVal
	}
	return v
}

// ExtractOptionalString returns opts[key] when it is a string accepted by
// validator, and defaultVal otherwise.
func ExtractOptionalString(opts map[string]any, key string, defaultVal string, validator func(string) bool) string {
	v, ok := opts[key].(string)
	if !ok || (validator != nil && !validator(v)) {
		return defaultVal
	}
	return v
}

// ExtractOptionalFloat64 returns opts[key] when it is a float64 accepted by
// validator, and defaultVal otherwise.
func ExtractOptionalFloat64(opts map[string]any, key string, defaultVal float64, validator func(float64) bool) float64 {
	v, ok := opts[key].(float64)
	if !ok || (validator != nil && !validator(v)) {
		return defaultVal
	}
	return v
}

// IsValidTemperature reports whether val lies in [MinTemperature, MaxTemperature].
func IsValidTemperature(val float64) bool {
	return val >= MinTemperature && val <= MaxTemperature
}

// IsValidTopP reports whether val lies in [MinTopP, MaxTopP].
func IsValidTopP(val float64) bool {
	return val >= MinTopP && val <= MaxTopP
}

// IsPositiveInt reports whether val is greater than zero.
func IsPositiveInt(val int) bool { return val > 0 }

// IsNonEmptyString reports whether val is non-empty.
func IsNonEmptyString(val string) bool { return val != "" }

// ValidateBaseURL checks that baseURL is an absolute http(s) URL and
// returns its normalized form. An empty string selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, but got: %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}

	return parsedURL.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Zero or a
// negative value returns zero, meaning no client-side timeout.
func ValidateTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return 0
	case timeout < MinTimeout:
		return MinTimeout
	case timeout > MaxTimeout:
		return MaxTimeout
	default:
		return timeout
	}
}

// SafeFloat32 converts a numeric option to float32, rejecting values that
// fall outside the float32 range.
func SafeFloat32(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		if v > 3.4e38 || v < -3.4e38 {
			return 0, false
		}
		return float32(v), true
	case int:
		return float32(v), true
	default:
		return 0, false
	}
}

// clamp restricts val to [lo, hi].
func clamp[T int | float64](val, lo, hi T) T {
	return max(lo, min(val, hi))
}
