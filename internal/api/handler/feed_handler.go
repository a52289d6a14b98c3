package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"guideboard/internal/common"
	"guideboard/internal/domain/model"

	"go.uber.org/zap"
)

// FeedSource hands out in-process subscriptions to job change events.
type FeedSource interface {
	Subscribe() (<-chan model.JobEvent, func())
}

// FeedHandler streams job change events as Server-Sent Events.
type FeedHandler struct {
	feed      FeedSource
	keepalive time.Duration
	logger    *zap.Logger
}

func NewFeedHandler(feed FeedSource, keepalive time.Duration, logger *zap.Logger) *FeedHandler {
	if keepalive <= 0 {
		keepalive = 25 * time.Second
	}
	return &FeedHandler{feed: feed, keepalive: keepalive, logger: logger.Named("feed")}
}

func (h *FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		common.RespondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	events, unsubscribe := h.feed.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("failed to encode job event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: job\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
