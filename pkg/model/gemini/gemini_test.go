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

package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/telefind/telefind/pkg/model"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBuildContents_RoleMapping(t *testing.T) {
	contents := buildContents([]model.Message{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi"},
		{Role: model.RoleUser, Content: ""},
		{Role: model.RoleUser, Content: "how are you"},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "hi", contents[1].Parts[0].Text)
}

func TestBuildConfig(t *testing.T) {
	m := &geminiModel{name: "gemini-2.0-flash", config: Config{Temperature: 0.7, MaxTokens: 256}}

	cfg := m.buildConfig(&model.Request{SystemInstruction: "be brief"})
	require.NotNil(t, cfg.SystemInstruction)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, float64(*cfg.Temperature), 0.001)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)

	// Request values override model defaults.
	cfg = m.buildConfig(&model.Request{Temperature: 1.2, MaxTokens: 64})
	assert.InDelta(t, 1.2, float64(*cfg.Temperature), 0.001)
	assert.Equal(t, int32(64), cfg.MaxOutputTokens)
	assert.Nil(t, cfg.SystemInstruction)
}

func TestParseResponse(t *testing.T) {
	_, err := parseResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	resp, err := parseResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "part one "},
				{Text: "part two"},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount: 10, CandidatesTokenCount: 5, TotalTokenCount: 15,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}
