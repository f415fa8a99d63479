// Copyright 2026 The Telefind Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the language-model contract the bot core talks to.
//
// A call is a single blocking request carrying the bounded conversation
// history; there is no internal retry and no streaming. Timeout and retry
// policy belong to the HTTP layer underneath the provider.
package model

import (
	"context"
)

// LLM is the interface for language-model providers.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the provider type.
	Provider() Provider

	// Generate produces one response for the given request.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Provider identifies the LLM provider.
type Provider string

const (
	ProviderGemini  Provider = "gemini"
	ProviderUnknown Provider = "unknown"
)

// Role tags a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation handed to the model.
type Message struct {
	Role    Role
	Content string
}

// Request contains the input for an LLM call.
type Request struct {
	// SystemInstruction is prepended to the conversation.
	SystemInstruction string

	// Messages is the bounded conversation history, oldest first. The
	// final message is the user's current prompt.
	Messages []Message

	// Temperature controls randomness (0-2). Zero means provider default.
	Temperature float64

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model's answer.
type Response struct {
	Text         string
	FinishReason string
	Usage        *Usage
}
