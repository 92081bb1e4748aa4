package models

import "strings"

// Scope is a grant of access to one gateway capability.
type Scope string

const (
	ScopeLLMChat  Scope = "llm:chat"
	ScopeMCPRead  Scope = "mcp:read"
	ScopeMCPWrite Scope = "mcp:write"
)

// allowedScopes is the closed set of scopes the gateway understands.
var allowedScopes = map[Scope]struct{}{
	ScopeLLMChat:  {},
	ScopeMCPRead:  {},
	ScopeMCPWrite: {},
}

// DefaultScopes returns the grant used when a request names no valid scope.
func DefaultScopes() []Scope {
	return []Scope{ScopeLLMChat}
}

// AllScopes returns every scope the gateway understands.
func AllScopes() []Scope {
	return []Scope{ScopeLLMChat, ScopeMCPRead, ScopeMCPWrite}
}

// IsValidScope reports whether s names a known scope.
func IsValidScope(s Scope) bool {
	_, ok := allowedScopes[s]
	return ok
}

// ParseScopes splits a space-separated scope string and drops unknown
// entries without error. Duplicates are removed, order of first
// appearance is kept. An empty or fully-unknown request falls back to
// DefaultScopes.
func ParseScopes(raw string) []Scope {
	seen := make(map[Scope]struct{})
	var scopes []Scope
	for _, field := range strings.Fields(raw) {
		s := Scope(field)
		if !IsValidScope(s) {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	if len(scopes) == 0 {
		return DefaultScopes()
	}
	return scopes
}

// JoinScopes renders scopes as the space-separated wire form.
func JoinScopes(scopes []Scope) string {
	parts := make([]string, 0, len(scopes))
	for _, s := range scopes {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " ")
}

// HasScope reports whether scopes contains want.
func HasScope(scopes []Scope, want Scope) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
