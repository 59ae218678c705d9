package llm

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// anthropicOverloaded is Anthropic's non-standard "overloaded" status.
const anthropicOverloaded = 529

// isAnthropicRateLimit reports whether err is a rate-limit rejection from
// the Anthropic API.
func isAnthropicRateLimit(err error) bool {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusTooManyRequests ||
			apierr.StatusCode == anthropicOverloaded
	}
	return isRateLimitMessage(err)
}

// isOpenAIRateLimit reports whether err is a rate-limit rejection from the
// OpenAI API.
func isOpenAIRateLimit(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusTooManyRequests
	}
	return isRateLimitMessage(err)
}

// isGoogleRateLimit reports whether err is a quota rejection from the
// Gemini API. The SDK surfaces these as googleapi errors over REST and
// ResourceExhausted over gRPC.
func isGoogleRateLimit(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	return isRateLimitMessage(err)
}

// isRateLimitMessage is the string fallback for errors the SDKs did not
// type. Matches the wording the providers actually use.
func isRateLimitMessage(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "resource_exhausted")
}
