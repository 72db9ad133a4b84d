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

package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/your-org/lessonpack/internal/lessonpack"
)

// SystemPrompt pins the generator to a single JSON object
const SystemPrompt = "You are an expert teacher and instructional designer. " +
	"Return strictly valid JSON only. Do not include any extra text, markdown or code fences."

// Instruction is the compiled payload sent to the generator
type Instruction struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Compile turns a request into the generator instruction. It is pure: equal
// descriptors (after defaults) always produce byte-identical instructions. The
// constraints it states are requests to the generator, not guarantees; the
// normalizer enforces them afterwards.
func Compile(desc lessonpack.RequestDescriptor) Instruction {
	desc = desc.WithDefaults()

	var b strings.Builder
	b.WriteString("Return STRICT JSON only. A single JSON object. No markdown. No backticks. No text before or after the object.\n\n")

	fmt.Fprintf(&b, "Audience: Grade %s\n", desc.Grade)
	fmt.Fprintf(&b, "Subject: %s\n", desc.Subject)
	fmt.Fprintf(&b, "Topic: %s\n", desc.Topic)
	fmt.Fprintf(&b, "Curriculum: %s\n", desc.Curriculum)
	fmt.Fprintf(&b, "Duration: %d minutes\n\n", desc.DurationMinutes)

	b.WriteString(buildShape())
	b.WriteString(buildHardRequirements())
	b.WriteString(buildNotesRequirements())
	b.WriteString("\nOutput JSON must match the shape above exactly.")

	return Instruction{System: SystemPrompt, User: b.String()}
}

func buildShape() string {
	return `Return JSON with this exact shape:
{
  "meta": {"subject": string, "topic": string, "grade": string, "curriculum": string, "durationMins": number},
  "objectives": string[],
  "lessonNotes": string,
  "slides": [{
    "title": string,
    "bullets": string[],
    "imageQuery": string,
    "imageKeywords": string[],
    "videoQuery": string,
    "interactivePrompt": string
  }],
  "quiz": {
    "mcq": [{"question": string, "options": string[], "answerIndex": number}],
    "theory": [{"question": string, "markingGuide": string}]
  },
  "liveApplications": string[]
}

`
}

func buildHardRequirements() string {
	var b strings.Builder
	b.WriteString("Hard requirements:\n")
	fmt.Fprintf(&b, "- Slides: %d-%d slides.\n", lessonpack.MinSlides, lessonpack.MaxSlides)
	fmt.Fprintf(&b, "- Each slide: %d-%d bullets; short and student-friendly.\n", lessonpack.MinBullets, lessonpack.MaxBullets)
	b.WriteString("- Each slide MUST include non-empty imageQuery, videoQuery and interactivePrompt.\n")
	fmt.Fprintf(&b, "- imageKeywords: %d-%d simple nouns suitable for stock photos (e.g. \"plant cell\", \"microscope\").\n",
		lessonpack.MinImageKeywords, lessonpack.MaxImageKeywords)
	fmt.Fprintf(&b, "- Objectives: %d-%d measurable objectives.\n", lessonpack.MinObjectives, lessonpack.MaxObjectives)
	fmt.Fprintf(&b, "- MCQ: exactly %d questions; exactly %d options each; answerIndex 0-%d.\n",
		lessonpack.MCQCount, lessonpack.MCQOptionCount, lessonpack.MCQOptionCount-1)
	fmt.Fprintf(&b, "- Theory: exactly %d questions, each with a markingGuide.\n", lessonpack.TheoryCount)
	fmt.Fprintf(&b, "- liveApplications: at most %d real-life applications.\n\n", lessonpack.MaxApplications)
	return b.String()
}

func buildNotesRequirements() string {
	return `lessonNotes requirements:
- Minimum 700 words.
- Use plain-text headings in this order:
  1) Introduction
  2) Key Concepts
  3) Worked Examples (at least 2, step-by-step)
  4) Common Misconceptions (at least 3) with corrections
  5) Real-life Applications (at least 3, locally relevant where possible)
  6) Summary (5-8 bullet points)
  7) Homework/Practice (10 questions)
- Write teacher-ready notes (what to say and what learners do).
- Include at least 6 key vocabulary terms with meanings.
- Include differentiation (support/core/stretch).
- Include an exit ticket (3 short questions).
`
}

// EstimateTokens provides a rough estimate of token count (4 characters per token)
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}
