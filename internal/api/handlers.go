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

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/auth"
	"github.com/your-org/lessonpack/internal/lessonpack"
	"github.com/your-org/lessonpack/internal/resilience"
	"github.com/your-org/lessonpack/internal/store"
)

type handlers struct {
	generator PackGenerator
	store     PackStore
	balances  BalanceReader
	logger    *zap.Logger
}

// GenerateResponse is the success body of POST /api/generate
type GenerateResponse struct {
	Data             *lessonpack.ContentPack `json:"data"`
	ID               string                  `json:"id,omitempty"`
	RemainingCredits int64                   `json:"remainingCredits"`
}

func (h *handlers) generate(c *gin.Context) {
	userID := auth.UserID(c)

	var req lessonpack.RequestDescriptor
	if err := c.ShouldBindJSON(&req); err != nil && userID != "" {
		h.fail(c, "generate", resilience.NewRequestInvalidError("Invalid request body", err))
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), req, userID)
	if err != nil {
		h.fail(c, "generate", err)
		return
	}

	resp := GenerateResponse{Data: result.Pack, RemainingCredits: result.Remaining}

	if h.store != nil {
		// the credit is spent; keep the pack even if the client went away
		id, err := h.store.Save(context.WithoutCancel(c.Request.Context()), userID, result.Pack)
		if err != nil {
			h.logger.Error("Failed to save generated pack",
				zap.String("user_id", userID),
				zap.String("request_id", requestID(c)),
				zap.Error(err))
		} else {
			resp.ID = id
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *handlers) listPacks(c *gin.Context) {
	if h.store == nil {
		h.fail(c, "list_packs", resilience.NewNotFoundError("Pack storage is disabled", nil))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	packs, err := h.store.ListByUser(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		h.fail(c, "list_packs", resilience.NewInternalError("Failed to list packs", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"packs": packs})
}

func (h *handlers) getPack(c *gin.Context) {
	if h.store == nil {
		h.fail(c, "get_pack", resilience.NewNotFoundError("Pack storage is disabled", nil))
		return
	}

	rec, err := h.store.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		h.fail(c, "get_pack", resilience.NewNotFoundError("Pack not found", err))
		return
	}
	if err != nil {
		h.fail(c, "get_pack", resilience.NewInternalError("Failed to load pack", err))
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *handlers) deletePack(c *gin.Context) {
	if h.store == nil {
		h.fail(c, "delete_pack", resilience.NewNotFoundError("Pack storage is disabled", nil))
		return
	}

	err := h.store.Delete(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		h.fail(c, "delete_pack", resilience.NewNotFoundError("Pack not found", err))
		return
	}
	if err != nil {
		h.fail(c, "delete_pack", resilience.NewInternalError("Failed to delete pack", err))
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *handlers) allowance(c *gin.Context) {
	n, err := h.balances.Balance(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, "allowance", resilience.NewUpstreamUnavailableError("Allowance service unavailable", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"remainingCredits": n})
}

func (h *handlers) fail(c *gin.Context, operation string, err error) {
	serviceErr := resilience.AsServiceError(err)
	resilience.LogError(h.logger, err, operation,
		zap.String("request_id", requestID(c)),
		zap.String("user_id", auth.UserID(c)))
	c.AbortWithStatusJSON(serviceErr.StatusCode, serviceErr.ToErrorResponse(requestID(c)))
}
