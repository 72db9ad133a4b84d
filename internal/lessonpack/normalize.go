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

package lessonpack

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Placeholder text used when the generator leaves a required entry out
const (
	PlaceholderQuestion       = "Question"
	PlaceholderTheoryQuestion = "Theory question"
)

var placeholderOptions = [MCQOptionCount]string{"Option A", "Option B", "Option C", "Option D"}

// Normalize coerces any decoded JSON value into a ContentPack that satisfies every
// cardinality invariant. It never fails: missing or mistyped fields get defaults, meta
// falls back to the descriptor, oversized collections are truncated and exact-count
// collections are padded with placeholders.
//
// Normalize is idempotent: a normalized pack passed back in, typed or decoded from
// JSON, yields the same pack.
func Normalize(raw any, desc RequestDescriptor) *ContentPack {
	desc = desc.WithDefaults()
	root := asMap(generic(raw))
	quiz := asMap(lookup(root, "quiz"))

	pack := &ContentPack{
		Meta:         normalizeMeta(asMap(lookup(root, "meta")), desc),
		Objectives:   stringList(lookup(root, "objectives"), MaxObjectives),
		BodyText:     text(lookup(root, "lessonNotes", "bodyText", "notes"), ""),
		Slides:       normalizeSlides(asList(lookup(root, "slides"))),
		Applications: stringList(lookup(root, "liveApplications", "applications"), MaxApplications),
		Quiz: Quiz{
			MultipleChoice: normalizeMCQ(asList(lookup(quiz, "mcq", "multipleChoice"))),
			ShortAnswer:    normalizeTheory(asList(lookup(quiz, "theory", "shortAnswer"))),
		},
	}
	return pack
}

// generic turns a typed pack into the decoded JSON form the normalizer reads
func generic(raw any) any {
	switch v := raw.(type) {
	case *ContentPack:
		if v == nil {
			return nil
		}
		return generic(*v)
	case ContentPack:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
	return raw
}

func normalizeMeta(m map[string]any, desc RequestDescriptor) Meta {
	duration := desc.DurationMinutes
	if v, ok := intValue(lookup(m, "durationMins", "durationMinutes"), true); ok && v > 0 {
		duration = v
	}
	return Meta{
		Subject:         text(lookup(m, "subject"), desc.Subject),
		Topic:           text(lookup(m, "topic"), desc.Topic),
		Grade:           text(lookup(m, "grade"), desc.Grade),
		Curriculum:      text(lookup(m, "curriculum"), desc.Curriculum),
		DurationMinutes: duration,
	}
}

func normalizeSlides(items []any) []Slide {
	if len(items) > MaxSlides {
		items = items[:MaxSlides]
	}
	slides := make([]Slide, 0, MaxSlides)
	for i, item := range items {
		slides = append(slides, normalizeSlide(asMap(item), i))
	}
	for i := len(slides); i < MinSlides; i++ {
		slides = append(slides, normalizeSlide(nil, i))
	}
	return slides
}

func normalizeSlide(m map[string]any, index int) Slide {
	return Slide{
		Title:             text(lookup(m, "title"), fmt.Sprintf("Slide %d", index+1)),
		Bullets:           stringList(lookup(m, "bullets"), MaxBullets),
		ImageQuery:        text(lookup(m, "imageQuery"), ""),
		ImageKeywords:     stringList(lookup(m, "imageKeywords"), MaxImageKeywords),
		VideoQuery:        text(lookup(m, "videoQuery"), ""),
		InteractivePrompt: text(lookup(m, "interactivePrompt"), ""),
		Image:             text(lookup(m, "image"), ""),
		VideoURL:          text(lookup(m, "videoUrl"), ""),
		ImageSearchURL:    text(lookup(m, "imageSearchUrl"), ""),
	}
}

func normalizeMCQ(items []any) []MCQItem {
	if len(items) > MCQCount {
		items = items[:MCQCount]
	}
	out := make([]MCQItem, 0, MCQCount)
	for _, item := range items {
		m := asMap(item)
		raw := asList(lookup(m, "options"))
		options := make([]string, MCQOptionCount)
		for i := range options {
			var v any
			if i < len(raw) {
				v = raw[i]
			}
			options[i] = scalarText(v, placeholderOptions[i])
		}

		answer := 0
		if v, ok := intValue(lookup(m, "answerIndex"), false); ok && v >= 0 && v < MCQOptionCount {
			answer = v
		}

		out = append(out, MCQItem{
			Question:    text(lookup(m, "question"), PlaceholderQuestion),
			Options:     options,
			AnswerIndex: answer,
		})
	}
	for len(out) < MCQCount {
		out = append(out, MCQItem{
			Question: PlaceholderQuestion,
			Options:  append([]string(nil), placeholderOptions[:]...),
		})
	}
	return out
}

func normalizeTheory(items []any) []TheoryItem {
	if len(items) > TheoryCount {
		items = items[:TheoryCount]
	}
	out := make([]TheoryItem, 0, TheoryCount)
	for _, item := range items {
		m := asMap(item)
		out = append(out, TheoryItem{
			Question:     text(lookup(m, "question"), PlaceholderTheoryQuestion),
			MarkingGuide: text(lookup(m, "markingGuide"), ""),
		})
	}
	for len(out) < TheoryCount {
		out = append(out, TheoryItem{Question: PlaceholderTheoryQuestion})
	}
	return out
}

// lookup returns the value of the first key present with a non-nil value
func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

// text returns the trimmed string value, or fallback when v is not a non-blank string
func text(v any, fallback string) string {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return s
}

// scalarText is text that also accepts numbers and booleans
func scalarText(v any, fallback string) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return text(v, fallback)
	}
}

// stringList keeps the non-blank scalar entries of v, capped at limit. The result is
// never nil so it encodes as [] rather than null.
func stringList(v any, limit int) []string {
	out := make([]string, 0)
	for _, item := range asList(v) {
		if len(out) == limit {
			break
		}
		if s := scalarText(item, ""); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// intValue reads an integer from a JSON number or numeric string. Fractional values
// are truncated when truncate is set, otherwise rejected.
func intValue(v any, truncate bool) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		return x, true
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	if f != math.Trunc(f) && !truncate {
		return 0, false
	}
	return int(math.Trunc(f)), true
}
