package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/go-chi/chi/v5"
)

type EventSource interface {
	Subscribe(ctx context.Context, productID string) <-chan models.OrderEvent
}

// SSEHandler streams order lifecycle events to admin dashboards.
type SSEHandler struct {
	Logger *logger.Logger
	Events EventSource
}

func NewSSEHandler(log *logger.Logger, events EventSource) *SSEHandler {
	return &SSEHandler{Logger: log, Events: events}
}

func (h *SSEHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/orders/stream", h.HandleOrderStream)
}

// HandleOrderStream streams events for every product, or for the one named
// by the product_id query parameter.
func (h *SSEHandler) HandleOrderStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	productID := r.URL.Query().Get("product_id")
	ctx := r.Context()
	events := h.Events.Subscribe(ctx, productID)

	h.setupSSEHeaders(w)
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"product_id\":%q}\n\n", productID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("client connected product=%q", productID))

	for {
		select {
		case <-ctx.Done():
			h.Logger.Info("SSE", fmt.Sprintf("client disconnected product=%q", productID))
			return
		case event, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("marshal event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
