// Copyright 2025 Certen Protocol
//
// State-Sync Wire API Handlers
// Serves the three statesync.PeerClient messages over HTTP so this
// validator can act as the peer another validator's state-sync event loop
// queries: checkpoint summary lookup, checkpoint contents lookup, and
// receiving a pushed checkpoint notification.

package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/statesync"
	"github.com/certen/objectvalidator/pkg/types"
)

// StateSyncHandlers answers peer requests against the local object store
// and forwards pushed checkpoints into the local event loop.
type StateSyncHandlers struct {
	store  objectstore.Store
	handle *statesync.Handle
	logger *log.Logger
}

// NewStateSyncHandlers creates new state-sync wire handlers. handle may be
// nil if this node doesn't run its own event loop (e.g. a read-only mirror).
func NewStateSyncHandlers(store objectstore.Store, handle *statesync.Handle, logger *log.Logger) *StateSyncHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[StateSyncAPI] ", log.LstdFlags)
	}
	return &StateSyncHandlers{store: store, handle: handle, logger: logger}
}

// checkpointSummaryRequest mirrors statesync.CheckpointSummaryQuery over the wire.
type checkpointSummaryRequest struct {
	Latest     bool                              `json:"latest"`
	BySequence *types.CheckpointSequenceNumber    `json:"by_sequence,omitempty"`
	ByDigest   *types.CheckpointDigest            `json:"by_digest,omitempty"`
}

// HandleGetCheckpointSummary handles POST /api/v1/statesync/checkpoint-summary.
func (h *StateSyncHandlers) HandleGetCheckpointSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req checkpointSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query")
		return
	}

	var (
		summary *types.CertifiedCheckpointSummary
		ok      bool
	)
	switch {
	case req.Latest:
		summary, ok = h.store.LatestCheckpoint()
	case req.BySequence != nil:
		summary, ok = h.store.GetCheckpointBySequence(*req.BySequence)
	case req.ByDigest != nil:
		summary, ok = h.store.GetCheckpointByDigest(*req.ByDigest)
	default:
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Query must set latest, by_sequence, or by_digest")
		return
	}

	if !ok {
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", "Checkpoint not found")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

type checkpointContentsRequest struct {
	ContentDigest types.Digest `json:"content_digest"`
}

// HandleGetCheckpointContents handles POST /api/v1/statesync/checkpoint-contents.
func (h *StateSyncHandlers) HandleGetCheckpointContents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req checkpointContentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query")
		return
	}

	contents, ok, err := h.store.GetFullCheckpointContents(r.Context(), req.ContentDigest)
	if err != nil {
		h.logger.Printf("error loading checkpoint contents: %v", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load checkpoint contents")
		return
	}
	if !ok {
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", "Checkpoint contents not found")
		return
	}
	h.writeJSON(w, http.StatusOK, contents)
}

type pushCheckpointRequest struct {
	Peer       statesync.PeerID                   `json:"peer"`
	Checkpoint *types.CertifiedCheckpointSummary `json:"checkpoint"`
}

// HandlePushCheckpoint handles POST /api/v1/statesync/push-checkpoint: a
// peer notifying us it has synced a new checkpoint. This is untrusted
// peer input, so it only updates our peer-height table — header sync still
// re-verifies the committee signature quorum before adopting it, it is
// never routed through the local-consensus fast path.
func (h *StateSyncHandlers) HandlePushCheckpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req pushCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Checkpoint == nil || req.Peer == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid push payload")
		return
	}

	if h.handle != nil {
		h.handle.NotifyPeerCheckpoint(r.Context(), req.Peer, req.Checkpoint)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *StateSyncHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("error encoding response: %v", err)
	}
}

func (h *StateSyncHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
