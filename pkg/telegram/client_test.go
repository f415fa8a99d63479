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

package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telefind/telefind/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.TelegramConfig{Token: "test-token", APIBase: srv.URL}
	cfg.SetDefaults()
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(config.TelegramConfig{})
	assert.Error(t, err)
}

func TestClient_GetUpdates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/getUpdates", r.URL.Path)

		var req getUpdatesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.Offset)

		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":43,"message":{"message_id":1,"chat":{"id":7},"from":{"id":7},"text":"/help"}},
			{"update_id":44,"callback_query":{"id":"cb1","from":{"id":7},"data":"pg|7|tok|n","message":{"message_id":2,"chat":{"id":7}}}}
		]}`))
	})

	updates, err := client.GetUpdates(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	require.NotNil(t, updates[0].Message)
	assert.Equal(t, "/help", updates[0].Message.Text)

	require.NotNil(t, updates[1].CallbackQuery)
	assert.Equal(t, "pg|7|tok|n", updates[1].CallbackQuery.Data)
	assert.Equal(t, int64(2), updates[1].CallbackQuery.Message.MessageID)
}

func TestClient_SendMessageWithKeyboard(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(7), req.ChatID)
		require.NotNil(t, req.ReplyMarkup)
		assert.Equal(t, "Next", req.ReplyMarkup.InlineKeyboard[0][1].Text)

		w.Write([]byte(`{"ok":true,"result":{"message_id":99,"chat":{"id":7}}}`))
	})

	markup := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
		{Text: "Prev", CallbackData: "pg|7|tok|p"},
		{Text: "Next", CallbackData: "pg|7|tok|n"},
	}}}
	msg, err := client.SendMessage(context.Background(), 7, "results", markup)
	require.NoError(t, err)
	assert.Equal(t, int64(99), msg.MessageID)
}

func TestClient_SendMessageClipsLongText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, []rune(req.Text), messageLimit)
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":7}}}`))
	})

	_, err := client.SendMessage(context.Background(), 7, strings.Repeat("x", 5000), nil)
	require.NoError(t, err)
}

func TestClient_EditMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/editMessageText", r.URL.Path)

		var req editMessageTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(5), req.MessageID)

		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	err := client.EditMessage(context.Background(), 7, 5, "page 2", nil)
	assert.NoError(t, err)
}

func TestClient_AnswerCallback(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	require.NoError(t, client.AnswerCallback(context.Background(), "cb1", "done"))
	assert.True(t, called)

	// Empty callback id is a no-op.
	called = false
	require.NoError(t, client.AnswerCallback(context.Background(), "", ""))
	assert.False(t, called)
}

func TestClient_APIErrorSurfaces(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message not found"}`))
	})

	err := client.EditMessage(context.Background(), 7, 5, "page 2", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message not found")
}

func TestClient_ErrorStatusSurfacesDescription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`))
	})

	err := client.EditMessage(context.Background(), 7, 5, "page 2", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message to edit not found")
	assert.NotContains(t, err.Error(), "HTTP 400")
}
