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
	"strings"
	"unicode"

	"github.com/your-org/lessonpack/internal/lessonpack"
)

// DefaultPhrase is searched when a slide carries no usable hint at all
const DefaultPhrase = "education classroom"

// DefaultMaxWords caps cleaned search phrases; short phrases match stock photos better
const DefaultMaxWords = 3

var stopwords = map[string]struct{}{
	"diagram": {}, "labeled": {}, "labelled": {}, "with": {}, "of": {}, "showing": {},
	"explain": {}, "a": {}, "an": {}, "the": {}, "and": {}, "for": {}, "to": {}, "in": {}, "on": {},
}

// BuildPhrase picks the search phrase for a slide: its image query, then its image
// keywords, then its title, then the subject and topic of the pack.
func BuildPhrase(slide lessonpack.Slide, subject, topic string) string {
	candidates := []string{
		slide.ImageQuery,
		strings.Join(slide.ImageKeywords, " "),
		slide.Title,
		strings.TrimSpace(subject + " " + topic),
	}
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	return DefaultPhrase
}

// CleanQuery lowercases the phrase, turns punctuation into spaces, drops stopwords
// and keeps at most maxWords words. It falls back to DefaultPhrase when nothing
// survives.
func CleanQuery(phrase string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	mapped := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, phrase)

	words := make([]string, 0, maxWords)
	for _, w := range strings.Fields(mapped) {
		if _, skip := stopwords[w]; skip {
			continue
		}
		words = append(words, w)
		if len(words) == maxWords {
			break
		}
	}
	if len(words) == 0 {
		return DefaultPhrase
	}
	return strings.Join(words, " ")
}
