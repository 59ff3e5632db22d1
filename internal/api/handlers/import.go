package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ramonehamilton/binderkeep/internal/api/response"
	"github.com/ramonehamilton/binderkeep/internal/api/websocket"
	"github.com/ramonehamilton/binderkeep/internal/csvimport"
	"github.com/ramonehamilton/binderkeep/internal/importer"
	"github.com/ramonehamilton/binderkeep/internal/logging"
)

// MaxImportBytes bounds the size of an uploaded CSV.
const MaxImportBytes = 10 << 20

// ImportRunner runs a whole CSV import into a binder.
type ImportRunner interface {
	Run(ctx context.Context, binderID, text string, format csvimport.Format, progress importer.ProgressFunc) (*importer.Summary, error)
}

// EventPublisher receives import progress events. *websocket.Hub satisfies it.
type EventPublisher interface {
	BroadcastEvent(event websocket.Event) bool
}

// ImportHandler handles CSV uploads.
type ImportHandler struct {
	runner ImportRunner
	events EventPublisher
	logger *zap.Logger
}

// NewImportHandler creates a new ImportHandler. events may be nil.
func NewImportHandler(runner ImportRunner, events EventPublisher, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{runner: runner, events: events, logger: logger}
}

// ImportResponse is the result of an upload.
type ImportResponse struct {
	ImportID     string             `json:"import_id"`
	Format       string             `json:"format"`
	Created      int                `json:"created"`
	Placeholders int                `json:"placeholders"`
	Failed       []importer.Failure `json:"failed"`
}

// ImportCSV reads a CSV body and imports it into the binder. The format comes
// from ?format= and is detected when absent.
func (h *ImportHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	binderID := chi.URLParam(r, "binderID")
	logger := logging.FromContext(r.Context(), h.logger).With(zap.String("binder_id", binderID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, fmt.Errorf("import exceeds %d bytes", tooLarge.Limit))
			return
		}
		response.BadRequest(w, errors.New("failed to read request body"))
		return
	}
	text := string(body)

	format, err := csvimport.Select(r.URL.Query().Get("format"), text)
	if err != nil {
		response.BadRequest(w, err)
		return
	}

	importID := uuid.NewString()
	h.publish(websocket.EventImportStarted, websocket.ImportProgress{ImportID: importID, BinderID: binderID})

	progress := func(current, total int) {
		h.publish(websocket.EventImportProgress, websocket.ImportProgress{
			ImportID: importID,
			BinderID: binderID,
			Current:  current,
			Total:    total,
		})
	}

	summary, err := h.runner.Run(r.Context(), binderID, text, format, progress)
	if err != nil {
		logger.Info("Import rejected", zap.String("import_id", importID), zap.Error(err))
		h.publish(websocket.EventImportFailed, websocket.ImportProgress{
			ImportID: importID,
			BinderID: binderID,
			Error:    err.Error(),
		})
		writeError(w, err)
		return
	}

	h.publish(websocket.EventImportFinished, websocket.ImportProgress{
		ImportID: importID,
		BinderID: binderID,
		Created:  summary.Created,
		Failed:   len(summary.Failed),
	})

	failed := summary.Failed
	if failed == nil {
		failed = []importer.Failure{}
	}
	response.Success(w, ImportResponse{
		ImportID:     importID,
		Format:       format.Name,
		Created:      summary.Created,
		Placeholders: summary.Placeholders,
		Failed:       failed,
	})
}

func (h *ImportHandler) publish(eventType string, data websocket.ImportProgress) {
	if h.events == nil {
		return
	}
	h.events.BroadcastEvent(websocket.Event{Type: eventType, Data: data})
}
