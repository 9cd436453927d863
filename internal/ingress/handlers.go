package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/txrelay/internal/store"
	"github.com/roach88/txrelay/internal/tx"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req submitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error(), "")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("decode request: %v", err), "")
		return
	}

	if len(req.Transactions) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "no transactions in request", "")
		return
	}
	if len(req.Transactions) > s.cfg.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE",
			fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Transactions), s.cfg.MaxBatch), "")
		return
	}

	now := s.now()
	records := make([]tx.Record, len(req.Transactions))
	ids := make([]string, len(req.Transactions))
	for i, entry := range req.Transactions {
		rec, err := entry.toRecord(now)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RECORD",
				fmt.Sprintf("transactions[%d]: %v", i, err), entry.ID)
			return
		}
		records[i] = rec
		ids[i] = rec.ID
	}

	if err := s.store.Create(r.Context(), records); err != nil {
		s.writeStoreError(w, "submit", err)
		return
	}

	if s.notifier != nil {
		s.notifier.Notify()
	}

	submission := s.ids.Generate()
	slog.Info("transactions accepted", "submission_id", submission, "count", len(ids))
	writeJSON(w, http.StatusAccepted, submitResponse{SubmissionID: submission, IDs: ids})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := tx.NormalizeID(r.PathValue("id"))

	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, fromRecord(rec))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.writeStoreError(w, "stats", err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, statsResponse{Counts: counts, Total: total})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeStoreError(w, "health", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeStoreError maps store error codes onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	var serr *store.Error
	if !errors.As(err, &serr) {
		slog.Error("ingress request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), "")
		return
	}

	status := http.StatusInternalServerError
	switch serr.Code {
	case store.ErrCodeInvalidRecord:
		status = http.StatusBadRequest
	case store.ErrCodeNotFound:
		status = http.StatusNotFound
	case store.ErrCodeDuplicateID:
		status = http.StatusConflict
	case store.ErrCodeDependencyNotFound:
		status = http.StatusUnprocessableEntity
	case store.ErrCodeStorageUnavailable:
		status = http.StatusServiceUnavailable
	}
	rejected := store.IsRejection(err)
	switch {
	case rejected:
		slog.Debug("ingress request rejected", "op", op, "code", serr.Code, "tx_id", serr.TxID)
	case status >= http.StatusInternalServerError:
		slog.Error("ingress request failed", "op", op, "error", err)
	default:
		slog.Debug("ingress request failed", "op", op, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Code:     string(serr.Code),
		Message:  serr.Message,
		ID:       serr.TxID,
		Rejected: rejected,
	})
}

func writeError(w http.ResponseWriter, status int, code, message, id string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message, ID: id})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
