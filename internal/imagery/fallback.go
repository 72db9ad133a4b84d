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
	"net/url"
	"strings"
)

// DefaultFallbackPool is a fixed set of vetted classroom images. Slides that get no
// search result rotate through it by position.
var DefaultFallbackPool = []string{
	"https://images.unsplash.com/photo-1524995997946-a1c2e315a42f?w=1200",
	"https://images.unsplash.com/photo-1503676260728-1c00da094a0b?w=1200",
	"https://images.unsplash.com/photo-1509062522246-3755977927d7?w=1200",
	"https://images.unsplash.com/photo-1497633762265-9d179a990aa6?w=1200",
	"https://images.unsplash.com/photo-1513258496099-48168024aec0?w=1200",
	"https://images.unsplash.com/photo-1532012197267-da84d127e765?w=1200",
}

// FallbackImage returns pool[ordinal mod len(pool)], using the default pool when
// pool is empty
func FallbackImage(pool []string, ordinal int) string {
	if len(pool) == 0 {
		pool = DefaultFallbackPool
	}
	i := ordinal % len(pool)
	if i < 0 {
		i += len(pool)
	}
	return pool[i]
}

// YouTubeSearchURL links to a YouTube search for the query
func YouTubeSearchURL(query string) string {
	if strings.TrimSpace(query) == "" {
		query = "education lesson"
	}
	return "https://www.youtube.com/results?search_query=" + url.QueryEscape(query)
}

// WikimediaSearchURL links to a Wikimedia Commons media search for the query
func WikimediaSearchURL(query string) string {
	if strings.TrimSpace(query) == "" {
		query = "education"
	}
	return "https://commons.wikimedia.org/wiki/Special:MediaSearch?type=image&search=" + url.QueryEscape(query)
}
