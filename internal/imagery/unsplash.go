// Copyright 2024 Lesson Pack Project
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

package imagery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultUnsplashEndpoint is the Unsplash API base URL
const DefaultUnsplashEndpoint = "https://api.unsplash.com"

// ErrMissingCredential is returned by providers that need a key they were not given
var ErrMissingCredential = errors.New("image provider credential missing")

// Provider finds one image URL for a cleaned search phrase. An empty URL with a
// nil error means the search ran but matched nothing.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) (string, error)
}

// Unsplash searches the Unsplash photo API
type Unsplash struct {
	accessKey  string
	endpoint   string
	httpClient *http.Client
}

// NewUnsplash creates an Unsplash provider. An empty endpoint selects the public API.
func NewUnsplash(accessKey, endpoint string, httpClient *http.Client) *Unsplash {
	if endpoint == "" {
		endpoint = DefaultUnsplashEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Unsplash{
		accessKey:  strings.TrimSpace(accessKey),
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: httpClient,
	}
}

// Name returns the provider name
func (u *Unsplash) Name() string { return "unsplash" }

// Configured reports whether an access key is present
func (u *Unsplash) Configured() bool { return u.accessKey != "" }

type unsplashSearchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
			Full    string `json:"full"`
		} `json:"urls"`
	} `json:"results"`
}

// Search returns the regular-size URL of the first landscape match
func (u *Unsplash) Search(ctx context.Context, query string) (string, error) {
	if !u.Configured() {
		return "", ErrMissingCredential
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")
	params.Set("content_filter", "high")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint+"/search/photos?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create unsplash request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+u.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("unsplash request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unsplash returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed unsplashSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode unsplash response: %w", err)
	}
	for _, r := range parsed.Results {
		if r.URLs.Regular != "" {
			return r.URLs.Regular, nil
		}
		if r.URLs.Full != "" {
			return r.URLs.Full, nil
		}
	}
	return "", nil
}
