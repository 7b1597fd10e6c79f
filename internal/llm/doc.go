// Package llm is the dispatch layer for OpenAI-compatible chat-completion
// endpoints (OpenAI, Azure OpenAI, Ollama, vLLM, LiteLLM).
//
// A [Client] performs one analysis exchange per batch, with a bounded retry
// state machine around transient failures: rate limiting, 5xx responses,
// network errors, and schema-invalid response bodies. Authentication and
// request-shape errors fail immediately.
//
// Every outbound call is spaced by a shared [Throttle]: a per-run object
// holding a fixed base delay plus an adaptive penalty that ramps on each
// 429 (never below the provider's Retry-After hint) and decays more slowly
// on success, so a long full-scan settles just under the provider's limit
// instead of oscillating into it.
package llm
