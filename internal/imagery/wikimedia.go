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
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// DefaultWikimediaEndpoint is the Commons action API
const DefaultWikimediaEndpoint = "https://commons.wikimedia.org/w/api.php"

const wikimediaUserAgent = "lessonpack/1.0 (https://github.com/your-org/lessonpack)"

// Wikimedia searches the file namespace of Wikimedia Commons. It needs no credential.
type Wikimedia struct {
	endpoint   string
	httpClient *http.Client
}

// NewWikimedia creates a Commons provider
func NewWikimedia(endpoint string, httpClient *http.Client) *Wikimedia {
	if endpoint == "" {
		endpoint = DefaultWikimediaEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Wikimedia{endpoint: endpoint, httpClient: httpClient}
}

// Name returns the provider name
func (w *Wikimedia) Name() string { return "wikimedia" }

type wikimediaResponse struct {
	Query struct {
		Pages map[string]struct {
			Index     int `json:"index"`
			ImageInfo []struct {
				ThumbURL string `json:"thumburl"`
				URL      string `json:"url"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// Search returns a 1200px thumbnail of the best ranked file match
func (w *Wikimedia) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrnamespace", "6")
	params.Set("gsrlimit", "1")
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url")
	params.Set("iiurlwidth", "1200")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create wikimedia request: %w", err)
	}
	req.Header.Set("User-Agent", wikimediaUserAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wikimedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wikimedia returned status %d", resp.StatusCode)
	}

	var parsed wikimediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode wikimedia response: %w", err)
	}

	// pages is keyed by page id; search rank lives in index
	keys := make([]string, 0, len(parsed.Query.Pages))
	for k := range parsed.Query.Pages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return parsed.Query.Pages[keys[i]].Index < parsed.Query.Pages[keys[j]].Index
	})

	for _, k := range keys {
		for _, info := range parsed.Query.Pages[k].ImageInfo {
			if u := strings.TrimSpace(info.ThumbURL); u != "" {
				return u, nil
			}
			if u := strings.TrimSpace(info.URL); u != "" {
				return u, nil
			}
		}
	}
	return "", nil
}
