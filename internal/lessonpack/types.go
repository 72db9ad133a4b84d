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

// Package lessonpack defines the lesson pack data model and the normalizer that
// coerces arbitrary generator output into it.
package lessonpack

import (
	"fmt"
	"strings"
)

const (
	// DefaultCurriculum is used when a request does not name one
	DefaultCurriculum = "general"
	// DefaultDurationMinutes is used when a request does not give a duration
	DefaultDurationMinutes = 40

	MinSlides        = 8
	MaxSlides        = 12
	MinBullets       = 4
	MaxBullets       = 8
	MinObjectives    = 3
	MaxObjectives    = 12
	MaxApplications  = 8
	MinImageKeywords = 2
	MaxImageKeywords = 5
	MCQCount         = 10
	MCQOptionCount   = 4
	TheoryCount      = 2
)

// RequestDescriptor describes what the caller wants generated
type RequestDescriptor struct {
	Subject         string `json:"subject"`
	Topic           string `json:"topic"`
	Grade           string `json:"grade"`
	Curriculum      string `json:"curriculum,omitempty"`
	DurationMinutes int    `json:"durationMins,omitempty"`
}

// WithDefaults returns a copy with curriculum and duration filled in
func (d RequestDescriptor) WithDefaults() RequestDescriptor {
	d.Subject = strings.TrimSpace(d.Subject)
	d.Topic = strings.TrimSpace(d.Topic)
	d.Grade = strings.TrimSpace(d.Grade)
	d.Curriculum = strings.TrimSpace(d.Curriculum)
	if d.Curriculum == "" {
		d.Curriculum = DefaultCurriculum
	}
	if d.DurationMinutes <= 0 {
		d.DurationMinutes = DefaultDurationMinutes
	}
	return d
}

// Validate reports the required fields that are missing
func (d RequestDescriptor) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(d.Topic) == "" {
		missing = append(missing, "topic")
	}
	if strings.TrimSpace(d.Grade) == "" {
		missing = append(missing, "grade")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Meta echoes the request the pack was generated for
type Meta struct {
	Subject         string `json:"subject"`
	Topic           string `json:"topic"`
	Grade           string `json:"grade"`
	Curriculum      string `json:"curriculum"`
	DurationMinutes int    `json:"durationMins"`
}

// Slide is one presentation unit of a pack
type Slide struct {
	Title             string   `json:"title"`
	Bullets           []string `json:"bullets"`
	ImageQuery        string   `json:"imageQuery"`
	ImageKeywords     []string `json:"imageKeywords"`
	VideoQuery        string   `json:"videoQuery"`
	InteractivePrompt string   `json:"interactivePrompt"`
	Image             string   `json:"image"`
	VideoURL          string   `json:"videoUrl,omitempty"`
	ImageSearchURL    string   `json:"imageSearchUrl,omitempty"`
}

// MCQItem is a four-option multiple choice question
type MCQItem struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answerIndex"`
}

// TheoryItem is a short answer question with its marking guide
type TheoryItem struct {
	Question     string `json:"question"`
	MarkingGuide string `json:"markingGuide"`
}

// Quiz groups the assessment items of a pack
type Quiz struct {
	MultipleChoice []MCQItem    `json:"mcq"`
	ShortAnswer    []TheoryItem `json:"theory"`
}

// ContentPack is the normalized generated artifact.
// JSON keys match the output contract handed to the generator, so a pack can be
// fed back through Normalize unchanged.
type ContentPack struct {
	Meta         Meta     `json:"meta"`
	Objectives   []string `json:"objectives"`
	BodyText     string   `json:"lessonNotes"`
	Slides       []Slide  `json:"slides"`
	Quiz         Quiz     `json:"quiz"`
	Applications []string `json:"liveApplications"`
}

// Violations lists every cardinality invariant the pack breaks. A pack returned by
// Normalize always yields an empty list.
func (p *ContentPack) Violations() []string {
	var out []string
	if n := len(p.Slides); n < MinSlides || n > MaxSlides {
		out = append(out, fmt.Sprintf("slides: %d not in [%d,%d]", n, MinSlides, MaxSlides))
	}
	for i, s := range p.Slides {
		if len(s.Bullets) > MaxBullets {
			out = append(out, fmt.Sprintf("slide %d: %d bullets", i, len(s.Bullets)))
		}
	}
	if len(p.Objectives) > MaxObjectives {
		out = append(out, fmt.Sprintf("objectives: %d", len(p.Objectives)))
	}
	if len(p.Applications) > MaxApplications {
		out = append(out, fmt.Sprintf("applications: %d", len(p.Applications)))
	}
	if n := len(p.Quiz.MultipleChoice); n != MCQCount {
		out = append(out, fmt.Sprintf("mcq: %d, want %d", n, MCQCount))
	}
	for i, q := range p.Quiz.MultipleChoice {
		if len(q.Options) != MCQOptionCount {
			out = append(out, fmt.Sprintf("mcq %d: %d options", i, len(q.Options)))
		}
		if q.AnswerIndex < 0 || q.AnswerIndex >= MCQOptionCount {
			out = append(out, fmt.Sprintf("mcq %d: answerIndex %d", i, q.AnswerIndex))
		}
	}
	if n := len(p.Quiz.ShortAnswer); n != TheoryCount {
		out = append(out, fmt.Sprintf("theory: %d, want %d", n, TheoryCount))
	}
	return out
}
