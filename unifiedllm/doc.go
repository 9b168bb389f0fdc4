// Package unifiedllm is a small provider-agnostic LLM client.
//
// Adapters translate a single Request/Response model onto a concrete
// backend: OpenAIAdapter speaks the Chat Completions API with native tool
// calls, GollmAdapter wraps github.com/teilomillet/gollm for the providers it
// supports. A Client routes requests to adapters and runs middleware around
// every call (rate limiting, logging).
//
// Generate adds transport retries and an optional tool loop on top of
// Client.Complete. GenerateObject asks for JSON matching a schema, decodes it
// into a Go value and re-prompts the model when the output does not parse or
// validate:
//
//	type verdict struct {
//		Cause string `json:"cause"`
//	}
//	v, _, err := unifiedllm.GenerateObject[verdict](ctx, unifiedllm.GenerateOptions{
//		Client:        client,
//		Prompt:        "Why did the build fail?",
//		SchemaRetries: 2,
//	}, unifiedllm.SchemaFor(verdict{}), nil)
package unifiedllm
