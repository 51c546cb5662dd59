package contextcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

const (
	// automaticKeyPrefix namespaces client-supplied cache keys so they are
	// recognizable in provider dashboards.
	automaticKeyPrefix = "jin-prefix-"
	// explicitDisplayPrefix namespaces display names of cached resources the
	// engine creates on its own.
	explicitDisplayPrefix = "jin-auto-"

	shortHashLen = 24
)

// AutomaticOpenAICacheKey derives the deterministic cache key for the
// key-based family. Equal (model, system prompt, tool set) always yields the
// identical key, so repeated requests with the same stable prefix land on the
// same provider-side cache slot.
func AutomaticOpenAICacheKey(model string, messages []domain.Message, tools []domain.ToolDefinition) string {
	material := strings.Join([]string{
		"openai",
		model,
		normalizedSystemPrompt(messages),
		sortedToolSignature(tools),
	}, "|")
	sum := sha256.Sum256([]byte(material))
	return automaticKeyPrefix + hex.EncodeToString(sum[:])[:shortHashLen]
}

// normalizedSystemPrompt is the trimmed concatenation of all text parts of
// the first system-role message; "" when there is none.
func normalizedSystemPrompt(messages []domain.Message) string {
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			return strings.TrimSpace(m.Text())
		}
	}
	return ""
}

// sortedToolSignature folds the tool set into a stable string: one
// "name|description|required,params" line per tool, sorted, newline-joined.
// Sorting makes the signature independent of declaration order.
func sortedToolSignature(tools []domain.ToolDefinition) string {
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		lines = append(lines, t.Name+"|"+t.Description+"|"+strings.Join(t.Required, ","))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// explicitFingerprint hashes the cache-relevant content of an explicit-family
// request into a stable lookup key.
func explicitFingerprint(provider domain.Provider, model, systemText string) string {
	material := strings.Join([]string{string(provider), model, systemText}, "|")
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

func registryKey(provider domain.Provider, model, fingerprint string) string {
	return string(provider) + "|" + model + "|" + fingerprint
}

func displayName(fingerprint string) string {
	return explicitDisplayPrefix + fingerprint[:shortHashLen]
}

// estimateTokens is the cheap local estimator used to decide cache
// eligibility without an extra API call: roughly one token per four chars.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// normalizeCacheModel maps a model id to the form the provider's cache API
// expects. Only the create payload uses this; the generation request keeps
// the caller's id untouched.
func normalizeCacheModel(provider domain.Provider, model string) string {
	switch provider {
	case domain.ProviderGemini:
		if strings.HasPrefix(model, "models/") {
			return model
		}
		return "models/" + model
	case domain.ProviderVertex:
		if strings.HasPrefix(model, "publishers/") {
			return model
		}
		if strings.HasPrefix(model, "models/") {
			return "publishers/google/" + model
		}
		return "publishers/google/models/" + model
	default:
		return model
	}
}
