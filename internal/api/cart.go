package api

import (
	"net/http"

	"github.com/rivamart/storefront/internal/domain/cart"
)

type cartResponse struct {
	Items []cart.Item `json:"items"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Get(r.Context(), UserID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: items})
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var item cart.Item
	if err := decodeJSON(r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items, err := h.carts.AddItem(r.Context(), UserID(r.Context()), item)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: items})
}

func (h *Handler) updateCartQuantity(w http.ResponseWriter, r *http.Request) {
	var item cart.Item
	if err := decodeJSON(r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items, err := h.carts.UpdateQuantity(r.Context(), UserID(r.Context()), item)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{Items: items})
}

type validateStockRequest struct {
	Items []cart.Item `json:"items"`
}

func (h *Handler) validateStock(w http.ResponseWriter, r *http.Request) {
	var req validateStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.carts.ValidateStock(r.Context(), req.Items)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
