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

// Package generation defines the contract between the pipeline and the
// generative text backends.
package generation

import (
	"context"
	"errors"

	"github.com/your-org/lessonpack/internal/prompt"
)

var (
	// ErrNotConfigured means the backend cannot be called at all, e.g. a missing or
	// rejected credential
	ErrNotConfigured = errors.New("generation service not configured")
	// ErrEmptyOutput means the backend answered without any text
	ErrEmptyOutput = errors.New("generation service returned empty output")
)

// Generator sends one compiled instruction to a generative text service and
// returns its raw text. Implementations make exactly one outbound call and never
// retry.
type Generator interface {
	Generate(ctx context.Context, instr prompt.Instruction) (string, error)
	// Name identifies the backend and model in logs
	Name() string
}

// Settings are the per-call knobs shared by all backends
type Settings struct {
	Model       string
	MaxTokens   int
	Temperature float64
}
