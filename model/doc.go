// Package model defines the provider-agnostic language-model capability used
// by the agent loop: a normalized Request/Response pair with function/tool
// calling, a channel-based Model interface, a scriptable MockModel for tests
// and the protective Guard wrapper (rate limiting, circuit breaking, bounded
// retry). Provider adapters live in the anthropic and openai subpackages.
package model
