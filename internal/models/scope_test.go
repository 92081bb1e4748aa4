package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScopesDropsUnknownSilently(t *testing.T) {
	scopes := ParseScopes("llm:chat bogus:scope")
	assert.Equal(t, []Scope{ScopeLLMChat}, scopes)
}

func TestParseScopesKeepsOrderAndDeduplicates(t *testing.T) {
	scopes := ParseScopes("mcp:write llm:chat mcp:write")
	assert.Equal(t, []Scope{ScopeMCPWrite, ScopeLLMChat}, scopes)
}

func TestParseScopesEmptyFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultScopes(), ParseScopes(""))
	assert.Equal(t, DefaultScopes(), ParseScopes("made:up other:junk"))
}

func TestJoinScopes(t *testing.T) {
	joined := JoinScopes([]Scope{ScopeLLMChat, ScopeMCPRead})
	assert.Equal(t, "llm:chat mcp:read", joined)
}

func TestHasScope(t *testing.T) {
	scopes := []Scope{ScopeLLMChat}
	assert.True(t, HasScope(scopes, ScopeLLMChat))
	assert.False(t, HasScope(scopes, ScopeMCPWrite))
}

func TestIsValidScope(t *testing.T) {
	assert.True(t, IsValidScope(ScopeMCPRead))
	assert.False(t, IsValidScope(Scope("admin:everything")))
}
