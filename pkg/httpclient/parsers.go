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

package httpclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ParseTelegramResponse extracts retry info from a Bot API error response.
// Telegram reports flood control both in the Retry-After header and in the
// response body as parameters.retry_after seconds.
func ParseTelegramResponse(resp *http.Response) RateLimitInfo {
	info := RateLimitInfo{}
	if resp == nil {
		return info
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	if info.RetryAfter > 0 || resp.Body == nil {
		return info
	}

	// The body has to stay readable for the caller, so restore it.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return info
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Parameters.RetryAfter > 0 {
		info.RetryAfter = time.Duration(payload.Parameters.RetryAfter) * time.Second
	}

	return info
}

// ParseRetryAfter extracts only the standard Retry-After header.
func ParseRetryAfter(resp *http.Response) RateLimitInfo {
	info := RateLimitInfo{}
	if resp == nil {
		return info
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		}
	}
	return info
}
