package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// TokenFeed streams a token table's transitions over a websocket.
type TokenFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, tableID uuid.UUID)
}

type LiveHandler struct {
	feed   TokenFeed
	logger *logging.Logger
}

func NewLiveHandler(feed TokenFeed, logger *logging.Logger) *LiveHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveHandler{feed: feed, logger: logger}
}

// TokenTable handles GET /ws/token-tables/{tableID}.
func (h *LiveHandler) TokenTable(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuidParam(r, "tableID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.feed.Serve(w, r, tableID)
}
