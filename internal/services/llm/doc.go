// Package llm provides the text completion clients used by the transcription
// and publication stages.
//
// This package is used by:
//   - Transcription: propose a speaker name for every diarized slot
//   - Publication: classify the meeting type, write a summary, and pick a
//     project tag when no keyword matches
//
// # Providers
//
// The default provider is OpenRouter, reached with a plain HTTP client that
// tolerates the response shapes different upstream models produce. Setting
// provider = "openai" switches to the go-openai client, which also serves
// self-hosted OpenAI-compatible endpoints.
//
// # Entry Points
//
// NewCompleter: pick a client from Config.
// Completer.Complete: send system/user prompts, receive text.
// Completer.CompleteJSON: same, with a JSON object response format.
// Client.HealthCheck: verify API key and model availability.
// DecodeLLMJSON: parse model JSON that may be wrapped in code fences.
//
// # Retry Behaviour
//
// The OpenRouter client retries on HTTP 408/429/5xx errors, empty content,
// and network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Final failures are tagged services.ErrTransient when
// a later attempt could succeed and services.ErrExternalTool otherwise.
package llm
