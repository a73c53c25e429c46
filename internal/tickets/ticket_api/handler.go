package ticket_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/approval"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/notifier"
	qr "ms-raffle/internal/tickets/qr_generator"
	"ms-raffle/internal/utils"
)

const maxBodyBytes = 64 << 10

type TicketService interface {
	IsTaken(ctx context.Context, numbers string) (bool, error)
	RandomAvailable(ctx context.Context) (string, error)
	Reserve(ctx context.Context, numbers string, owner models.OwnerData) (*models.Ticket, error)
	GetTicket(ctx context.Context, ref string) (*models.Ticket, error)
	UpdateOwner(ctx context.Context, ref string, patch models.OwnerPatch) (*models.Ticket, error)
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	ListTicketsByUser(ctx context.Context, phone string) ([]models.Ticket, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, ticketRef string) (*models.PaymentIntent, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (models.GlobalSettings, error)
	Update(ctx context.Context, patch models.SettingsPatch) (models.GlobalSettings, error)
}

type ApprovalService interface {
	RequestApproval(ctx context.Context, ref, operator string) (*approval.Request, error)
	Approve(ctx context.Context, ref, operator, token string) (*approval.Result, error)
}

type Handler struct {
	TicketService TicketService
	Checkout      CheckoutService
	Settings      SettingsStore
	Approvals     ApprovalService
	Changes       notifier.Source
	QRGenerator   *qr.QRGenerator
	Logger        *logger.Logger
}

// RegisterRoutes mounts the buyer routes and, behind adminAuth, the
// operator routes.
func (h *Handler) RegisterRoutes(r chi.Router, adminAuth func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/numbers/{numbers}/availability", h.CheckAvailability)
		r.Post("/numbers/random", h.RandomNumber)

		r.Post("/tickets", h.ReserveTicket)
		r.Get("/tickets/{ref}", h.ViewTicket)
		r.Patch("/tickets/{ref}/owner", h.UpdateOwner)
		r.Post("/tickets/{ref}/checkout", h.CheckoutTicket)
		r.Get("/tickets/{ref}/qr", h.TicketQR)

		r.Get("/users/{phone}/tickets", h.ListTicketsByUser)
		r.Get("/settings", h.PublicSettings)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth)
			r.Get("/tickets", h.ListTickets)
			r.Get("/tickets/stream", h.StreamTicketChanges)
			r.Post("/tickets/{ref}/approval", h.RequestApproval)
			r.Post("/tickets/{ref}/approval/confirm", h.ConfirmApproval)
			r.Get("/settings", h.AdminSettings)
			r.Put("/settings", h.UpdateSettings)
		})
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.NewValidationError("body", err.Error())
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := utils.StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("HTTP", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	} else {
		h.Logger.Debug("HTTP", fmt.Sprintf("%s %s -> %d: %v", r.Method, r.URL.Path, status, err))
	}
	utils.WriteError(w, err)
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	numbers := chi.URLParam(r, "numbers")
	taken, err := h.TicketService.IsTaken(r.Context(), numbers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Availability checked", models.AvailabilityResponse{Numbers: numbers, Taken: taken})
}

func (h *Handler) RandomNumber(w http.ResponseWriter, r *http.Request) {
	numbers, err := h.TicketService.RandomAvailable(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Number available", models.AvailabilityResponse{Numbers: numbers, Taken: false})
}

func (h *Handler) ReserveTicket(w http.ResponseWriter, r *http.Request) {
	var req models.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	ticket, err := h.TicketService.Reserve(r.Context(), req.Numbers, req.Owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Ticket reserved", ticket)
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Ticket found", ticket)
}

func (h *Handler) UpdateOwner(w http.ResponseWriter, r *http.Request) {
	var patch models.OwnerPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	ticket, err := h.TicketService.UpdateOwner(r.Context(), chi.URLParam(r, "ref"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Owner updated", ticket)
}

func (h *Handler) CheckoutTicket(w http.ResponseWriter, r *http.Request) {
	intent, err := h.Checkout.Checkout(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Checkout created", intent)
}

// TicketQR renders a PNG of the ticket's public verification URL. An
// optional ?size= sets the image width in pixels.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	size := qr.DefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > 1024 {
			h.fail(w, r, models.NewValidationError("size", "must be between 64 and 1024"))
			return
		}
		size = n
	}

	png, err := h.QRGenerator.GeneratePNG(ticket.Code, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) ListTicketsByUser(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.TicketService.ListTicketsByUser(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Tickets found", tickets)
}

func (h *Handler) PublicSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Settings.Get(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Settings", settings.Public())
}
