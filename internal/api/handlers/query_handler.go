package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/retrieval"
	"github.com/docqa/backend/pkg/logger"
)

type QueryHandler struct {
	orchestrator *retrieval.Orchestrator
}

func NewQueryHandler(orchestrator *retrieval.Orchestrator) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
	}
}

func (h *QueryHandler) HandleAsk(c *fiber.Ctx) error {
	var req struct {
		DocumentID string `json:"document_id"`
		Question   string `json:"question"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	answer, err := h.orchestrator.Answer(c.Context(), req.DocumentID, req.Question)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "document_id and question are required",
			})
		}
		logger.Error("Failed to answer question", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": retrieval.ErrCannotAnswer.Error(),
		})
	}

	sources := make([]fiber.Map, 0, len(answer.Sources))
	for _, s := range answer.Sources {
		sources = append(sources, fiber.Map{
			"fragment_id": s.FragmentID,
			"score":       s.Score,
			"kind":        string(s.Kind),
		})
	}

	resp := fiber.Map{
		"query_id":      answer.QueryID,
		"document_id":   answer.DocumentID,
		"answer":        answer.AnswerText,
		"confidence":    answer.Confidence,
		"cached":        answer.Cached,
		"sources":       sources,
		"latency_ms":    answer.LatencyMS,
		"generation_ms": answer.GenerationMS,
	}
	if answer.NoEvidence {
		resp["notice"] = retrieval.NoEvidenceNotice
	}

	return c.JSON(resp)
}
