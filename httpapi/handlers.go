package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jacentio/grove/forest"
)

const maxBodyBytes = 1 << 20

type createNodeRequest struct {
	Label    string `json:"label"`
	ParentID *int64 `json:"parentId"`
}

type cloneRequest struct {
	ParentID int64 `json:"parentId" validate:"required"`
	TargetID int64 `json:"targetId" validate:"required"`
}

type nodeResponse struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	ParentID *int64 `json:"parentId"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type handler struct {
	svc      Forest
	validate *validator.Validate
	logger   *zap.Logger
}

func newHandler(svc Forest, logger *zap.Logger) *handler {
	return &handler{svc: svc, validate: validator.New(), logger: logger}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getForest(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.GetForest(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) createNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	node, err := h.svc.CreateNode(r.Context(), req.Label, req.ParentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(node))
}

func (h *handler) cloneSubtree(w http.ResponseWriter, r *http.Request) {
	var req cloneRequest
	if !h.decode(w, r, &req) {
		return
	}
	node, err := h.svc.CloneSubtree(r.Context(), req.TargetID, req.ParentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(node))
}

// decode reads a JSON body into dst and runs its validation tags. It writes
// the 400 response itself and reports false on failure.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: fieldErrors(err)})
		return false
	}
	return true
}

func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fmt.Sprintf("failed on %q", fe.Tag())
	}
	return out
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid *forest.InvalidLabelError
		parent  *forest.ParentNotFoundError
		missing *forest.NodeNotFoundError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid label", Details: invalid.Reason})
	case errors.As(err, &parent):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "parent not found",
			Details: fmt.Sprintf("node %d does not exist", parent.ParentID),
		})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error:   "node not found",
			Details: fmt.Sprintf("node %d does not exist", missing.ID),
		})
	case forest.IsCancelled(err):
		h.logger.Warn("request cancelled",
			zap.String("requestId", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, errorResponse{Error: "request cancelled"})
	case errors.Is(err, forest.ErrCorruptTree):
		h.logger.Error("integrity violation",
			zap.String("requestId", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	default:
		h.logger.Error("request failed",
			zap.String("requestId", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func toResponse(n forest.Node) nodeResponse {
	return nodeResponse{ID: n.ID, Label: n.Label, ParentID: n.ParentID}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
