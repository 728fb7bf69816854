// internal/circulation/handler.go
package circulation

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"libraledger/internal/api"
	"libraledger/internal/ledger"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the circulation routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/borrow", h.handleBorrow)
		r.Get("/", h.handleListTransactions)
		r.Get("/overdue", h.handleOverdue)
		r.Get("/{id}", h.handleGetTransaction)
		r.Post("/{id}/return", h.handleReturn)
	})
	r.Route("/fines", func(r chi.Router) {
		r.Get("/", h.handleListFines)
		r.Get("/{id}", h.handleGetFine)
		r.Post("/{id}/pay", h.handlePayFine)
	})
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID uuid.UUID `json:"member_id"`
		BookID   uuid.UUID `json:"book_id"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MemberID == uuid.Nil || req.BookID == uuid.Nil {
		api.WriteError(w, fmt.Errorf("member_id and book_id are required: %w", ledger.ErrInvalidArgument))
		return
	}

	tr, err := h.service.Borrow(r.Context(), req.MemberID, req.BookID)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, tr)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	tr, err := h.service.Return(r.Context(), id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, tr)
}

func (h *Handler) handlePayFine(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid fine id", http.StatusBadRequest)
		return
	}

	fine, err := h.service.PayFine(r.Context(), id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, fine)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	trs, err := h.service.ListTransactions(r.Context())
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, trs)
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	tr, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, tr)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	trs, err := h.service.OverdueTransactions(r.Context())
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, trs)
}

func (h *Handler) handleListFines(w http.ResponseWriter, r *http.Request) {
	fines, err := h.service.ListFines(r.Context())
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, fines)
}

func (h *Handler) handleGetFine(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid fine id", http.StatusBadRequest)
		return
	}

	fine, err := h.service.GetFine(r.Context(), id)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, fine)
}
