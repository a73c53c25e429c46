package ticket_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/auth"
	"ms-raffle/internal/models"
	"ms-raffle/internal/utils"
)

func operatorName(r *http.Request) string {
	if op, ok := auth.OperatorFrom(r.Context()); ok {
		return op.Name
	}
	return ""
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.TicketService.ListTickets(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Tickets found", tickets)
}

// RequestApproval starts a manual payment confirmation. The response
// carries the prompt to show and the token to send back.
func (h *Handler) RequestApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.Approvals.RequestApproval(r.Context(), chi.URLParam(r, "ref"), operatorName(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, req.Prompt, req)
}

func (h *Handler) ConfirmApproval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if body.Token == "" {
		h.fail(w, r, models.NewValidationError("token", "is required"))
		return
	}

	res, err := h.Approvals.Approve(r.Context(), chi.URLParam(r, "ref"), operatorName(r), body.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Payment confirmed", res)
}

func (h *Handler) AdminSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Settings.Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Settings", settings)
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	settings, err := h.Settings.Update(r.Context(), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.LogSecurity("SETTINGS_UPDATED", "by "+operatorName(r))
	utils.WriteSuccess(w, http.StatusOK, "Settings updated", settings)
}
