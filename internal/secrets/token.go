// Package secrets resolves API credentials from flags, environment
// variables, and plain token files. It deliberately does nothing clever:
// secret storage proper is out of scope for this tool.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvAPIToken is the environment variable consulted for the document
// service API token when no explicit token is provided.
const EnvAPIToken = "PAPERTRAIL_API_TOKEN"

// EnvLLMKey is the environment variable consulted for the LLM OCR API key.
const EnvLLMKey = "OPENAI_API_KEY"

// ReadTokenFile returns the trimmed contents of a token file, or "" if the
// file does not exist.
func ReadTokenFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ResolveAPIToken picks the API token with precedence: explicit value,
// environment, token file.
func ResolveAPIToken(explicit, tokenFile string) (string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIToken)); v != "" {
		return v, nil
	}
	if v := ReadTokenFile(tokenFile); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing API token: pass --api-token, set %s, or place it in %s", EnvAPIToken, tokenFile)
}

// ResolveLLMKey picks the LLM API key with precedence: explicit value,
// environment, key file.
func ResolveLLMKey(explicit, keyFile string) (string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv(EnvLLMKey)); v != "" {
		return v, nil
	}
	if v := ReadTokenFile(keyFile); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing LLM API key: set %s or place it in %s", EnvLLMKey, keyFile)
}

// AuthorizationHeader normalizes a raw token into an Authorization header
// value. Tokens already carrying a "Token " or "Bearer " prefix pass through
// unchanged; bare tokens get the document service's "Token " prefix.
func AuthorizationHeader(token string) string {
	stripped := strings.TrimSpace(token)
	lower := strings.ToLower(stripped)
	if strings.HasPrefix(lower, "token ") || strings.HasPrefix(lower, "bearer ") {
		return stripped
	}
	return "Token " + stripped
}
