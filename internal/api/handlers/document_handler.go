package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/ingestion"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	db        *sqlite.Client // may be nil when persistence is disabled
}

func NewDocumentHandler(processor *ingestion.Processor, db *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		db:        db,
	}
}

func (h *DocumentHandler) IngestFragments(c *fiber.Ctx) error {
	documentID := c.Params("id")

	var req struct {
		Title     string `json:"title"`
		Fragments []struct {
			Text string `json:"text"`
			Kind string `json:"kind"`
		} `json:"fragments"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Fragments) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one fragment is required",
		})
	}

	inputs := make([]ingestion.FragmentInput, 0, len(req.Fragments))
	for i, f := range req.Fragments {
		kind, err := domain.ParseFragmentKind(f.Kind)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown fragment kind at index " + strconv.Itoa(i),
			})
		}
		inputs = append(inputs, ingestion.FragmentInput{Text: f.Text, Kind: kind})
	}

	report, err := h.processor.IngestFragments(c.Context(), documentID, req.Title, inputs)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to ingest fragments", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest fragments",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": report.DocumentID,
		"ingested":    report.Ingested,
		"skipped":     report.Skipped,
	})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")

	if err := h.processor.RemoveDocument(c.Context(), documentID); err != nil {
		logger.Error("Failed to remove document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to remove document",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"deleted":     true,
	})
}

func (h *DocumentHandler) GetStats(c *fiber.Ctx) error {
	documentID := c.Params("id")

	if h.db == nil {
		return c.JSON(fiber.Map{
			"document_id":    documentID,
			"fragments":      0,
			"cached_answers": 0,
		})
	}

	fragments, err := h.db.CountFragments(documentID)
	if err != nil {
		logger.Error("Failed to count fragments", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document stats",
		})
	}

	cached, err := h.db.CountCachedQA(documentID)
	if err != nil {
		logger.Error("Failed to count cached answers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document stats",
		})
	}

	return c.JSON(fiber.Map{
		"document_id":    documentID,
		"fragments":      fragments,
		"cached_answers": cached,
	})
}

func (h *DocumentHandler) GetHistory(c *fiber.Ctx) error {
	documentID := c.Params("id")

	if h.db == nil {
		return c.JSON(fiber.Map{"history": []interface{}{}})
	}

	limit := c.QueryInt("limit", 50)
	records, err := h.db.GetQueryHistory(documentID, limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, r := range records {
		history = append(history, fiber.Map{
			"id":          r.ID,
			"question":    r.QuestionText,
			"answer":      r.AnswerText,
			"confidence":  r.Confidence,
			"cached":      r.Cached,
			"no_evidence": r.NoEvidence,
			"latency_ms":  r.LatencyMS,
			"created_at":  r.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"history":     history,
	})
}
