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

// Package recovery extracts a JSON object from generator output that may be
// wrapped in prose or code fences.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxPreviewRunes bounds the raw text carried by a Failure
const MaxPreviewRunes = 1500

var errNotObject = errors.New("payload is not a JSON object")

// Failure is returned when neither the raw text nor its brace-delimited slice parses
type Failure struct {
	Preview string
	Direct  error
	Sliced  error
}

func (f *Failure) Error() string {
	if f.Sliced == nil {
		return fmt.Sprintf("no JSON object found in generator output (direct parse: %v)", f.Direct)
	}
	return fmt.Sprintf("invalid JSON in generator output (direct parse: %v; extracted parse: %v)", f.Direct, f.Sliced)
}

// Recover parses raw as a JSON object. When the strict parse fails it retries on the
// substring between the first '{' and the last '}'. The returned error is always a
// *Failure.
func Recover(raw string) (map[string]any, error) {
	obj, directErr := parseObject(raw)
	if directErr == nil {
		return obj, nil
	}

	extracted, ok := ExtractObject(raw)
	if !ok {
		return nil, &Failure{Preview: Preview(raw), Direct: directErr}
	}

	obj, slicedErr := parseObject(extracted)
	if slicedErr != nil {
		return nil, &Failure{Preview: Preview(raw), Direct: directErr, Sliced: slicedErr}
	}
	return obj, nil
}

// ExtractObject returns the text from the first '{' through the last '}'
func ExtractObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// Preview truncates text to MaxPreviewRunes runes
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxPreviewRunes {
		return text
	}
	return string(runes[:MaxPreviewRunes])
}

func parseObject(text string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}
