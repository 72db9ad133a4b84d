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

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/config"
	"github.com/your-org/lessonpack/internal/lessonpack"
)

type generateFlags struct {
	desc lessonpack.RequestDescriptor
	user string
	save bool
}

func newGenerateCmd(configPath *string) *cobra.Command {
	var flags generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one content pack and print it as JSON",
		Long: "Generate runs the full pipeline once for --user, spending one unit of their " +
			"allowance, and writes the resulting content pack to stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, _, err := initializeLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.orchestrator.Generate(cmd.Context(), flags.desc, flags.user)
			if err != nil {
				return err
			}

			if flags.save {
				id, err := a.packs.Save(cmd.Context(), flags.user, result.Pack)
				if err != nil {
					return fmt.Errorf("failed to save pack: %w", err)
				}
				logger.Info("Pack saved", zap.String("id", id), zap.String("user_id", flags.user))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result.Pack)
		},
	}

	cmd.Flags().StringVar(&flags.desc.Subject, "subject", "", "Lesson subject")
	cmd.Flags().StringVar(&flags.desc.Topic, "topic", "", "Lesson topic")
	cmd.Flags().StringVar(&flags.desc.Grade, "grade", "", "Grade level")
	cmd.Flags().StringVar(&flags.desc.Curriculum, "curriculum", "", "Curriculum (defaults to "+lessonpack.DefaultCurriculum+")")
	cmd.Flags().IntVar(&flags.desc.DurationMinutes, "duration", 0, "Lesson length in minutes")
	cmd.Flags().StringVarP(&flags.user, "user", "u", "", "User whose allowance is spent")
	cmd.Flags().BoolVar(&flags.save, "save", false, "Persist the pack in the pack store")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
