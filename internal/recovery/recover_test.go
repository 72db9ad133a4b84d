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

package recovery

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "clean object",
			raw:  `{"a":1}`,
			want: map[string]any{"a": 1.0},
		},
		{
			name: "wrapped in prose",
			raw:  `Sure! Here is your data: {"a":1} Hope that helps!`,
			want: map[string]any{"a": 1.0},
		},
		{
			name: "code fence",
			raw:  "```json\n{\"slides\":[{\"title\":\"x\"}]}\n```",
			want: map[string]any{"slides": []any{map[string]any{"title": "x"}}},
		},
		{
			name: "surrounding whitespace",
			raw:  "\n\n  {\"a\":\"b\"}  \n",
			want: map[string]any{"a": "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Recover(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoverFailures(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		hasSliced bool
	}{
		{name: "refusal", raw: "I cannot help with that."},
		{name: "empty", raw: ""},
		{name: "braces reversed", raw: "} nope {"},
		{name: "broken object", raw: `Here: {"a": 1,,} done`, hasSliced: true},
		{name: "top level array", raw: `[1, 2, 3]`},
		{name: "scalar", raw: `"just a string"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Recover(tt.raw)
			require.Error(t, err)
			assert.Nil(t, got)

			var failure *Failure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, tt.raw, failure.Preview)
			assert.Equal(t, tt.hasSliced, failure.Sliced != nil)
		})
	}
}

func TestRecoverPreviewIsBounded(t *testing.T) {
	raw := strings.Repeat("é", MaxPreviewRunes*2)

	_, err := Recover(raw)
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, MaxPreviewRunes, utf8.RuneCountInString(failure.Preview))
	assert.True(t, utf8.ValidString(failure.Preview))
}

func TestExtractObject(t *testing.T) {
	got, ok := ExtractObject(`prefix {"a":{"b":2}} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a":{"b":2}}`, got)

	_, ok = ExtractObject("no braces")
	assert.False(t, ok)
}
