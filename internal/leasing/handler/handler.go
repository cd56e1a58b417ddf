// Package handler exposes the leasing operations of one domain over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/airalab/xcm-robobank-prototype/internal/leasing/models"
	"github.com/airalab/xcm-robobank-prototype/internal/leasing/service"
	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
	"github.com/airalab/xcm-robobank-prototype/pkg/platform/httputil"
	request "github.com/airalab/xcm-robobank-prototype/pkg/platform/middleware/request"
	"github.com/airalab/xcm-robobank-prototype/pkg/requestcontext"
)

// Service is the leasing surface the handler drives.
type Service interface {
	Register(ctx context.Context, caller domain.AccountID, req service.RegisterRequest) error
	SetState(ctx context.Context, caller domain.AccountID, on bool) error
	Accept(ctx context.Context, caller domain.AccountID, req service.AcceptRequest) error
	Done(ctx context.Context, caller domain.AccountID, on bool) error
	PlaceOrder(ctx context.Context, caller domain.AccountID, req models.OrderRequest) error
	Cancel(ctx context.Context, caller, device domain.AccountID) error
	IdentityRemoved(ctx context.Context, account domain.AccountID) error
	Device(ctx context.Context, device domain.AccountID) (*service.DeviceView, error)
	Balance(ctx context.Context, account domain.AccountID) (models.Balance, error)
	RemoteOrder(ctx context.Context, device domain.AccountID, dom domain.DomainID) (*models.RemoteOrder, error)
	CancelRemote(ctx context.Context, caller, device domain.AccountID, dom domain.DomainID) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the caller routes. The router must authenticate callers
// before these handlers run.
func (h *Handler) Register(r chi.Router) {
	r.Post("/devices", h.HandleRegisterDevice)
	r.Put("/devices/state", h.HandleSetState)
	r.Post("/devices/accept", h.HandleAccept)
	r.Post("/devices/done", h.HandleDone)
	r.Get("/devices/{device}", h.HandleGetDevice)
	r.Post("/orders", h.HandlePlaceOrder)
	r.Post("/orders/{device}/cancel", h.HandleCancel)
	r.Get("/orders/remote/{domain}/{device}", h.HandleGetRemoteOrder)
	r.Post("/orders/remote/{domain}/{device}/cancel", h.HandleCancelRemote)
	r.Get("/accounts/{account}", h.HandleGetBalance)
}

// RegisterAdmin mounts operator routes behind the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/identities/{account}/removed", h.HandleIdentityRemoved)
}

func (h *Handler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterDeviceRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.svc.Register(ctx, caller, req.toService()); err != nil {
		h.fail(w, r, "register device", err)
		return
	}
	view, err := h.svc.Device(ctx, caller)
	if err != nil {
		h.fail(w, r, "load device", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) HandleSetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetStateRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.svc.SetState(ctx, caller, req.On); err != nil {
		h.fail(w, r, "set device state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AcceptRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.svc.Accept(ctx, caller, service.AcceptRequest{Reject: req.Reject, On: req.On}); err != nil {
		h.fail(w, r, "accept order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) HandleDone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DoneRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.svc.Done(ctx, caller, req.On); err != nil {
		h.fail(w, r, "complete order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := domain.ParseAccountID(chi.URLParam(r, "device"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid device"))
		return
	}
	view, err := h.svc.Device(r.Context(), device)
	if err != nil {
		h.fail(w, r, "load device", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PlaceOrderRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	order, err := req.toModel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.svc.PlaceOrder(ctx, caller, order); err != nil {
		h.fail(w, r, "place order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, nil)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	device, err := domain.ParseAccountID(chi.URLParam(r, "device"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid device"))
		return
	}
	if err := h.svc.Cancel(r.Context(), caller, device); err != nil {
		h.fail(w, r, "cancel order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) HandleGetRemoteOrder(w http.ResponseWriter, r *http.Request) {
	dom, err := domain.ParseDomainID(chi.URLParam(r, "domain"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid domain"))
		return
	}
	device, err := domain.ParseAccountID(chi.URLParam(r, "device"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid device"))
		return
	}
	ro, err := h.svc.RemoteOrder(r.Context(), device, dom)
	if err != nil {
		h.fail(w, r, "load remote order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ro)
}

// HandleCancelRemote takes back the fee held for an order sent to another
// domain that never reported an outcome.
func (h *Handler) HandleCancelRemote(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	dom, err := domain.ParseDomainID(chi.URLParam(r, "domain"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid domain"))
		return
	}
	device, err := domain.ParseAccountID(chi.URLParam(r, "device"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid device"))
		return
	}
	if err := h.svc.CancelRemote(r.Context(), caller, device, dom); err != nil {
		h.fail(w, r, "cancel remote order", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid account"))
		return
	}
	balance, err := h.svc.Balance(r.Context(), account)
	if err != nil {
		h.fail(w, r, "load balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balance)
}

func (h *Handler) HandleIdentityRemoved(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid account"))
		return
	}
	if err := h.svc.IdentityRemoved(r.Context(), account); err != nil {
		h.fail(w, r, "identity removal", err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	caller := requestcontext.Account(r.Context())
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing"))
		return "", false
	}
	return caller, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, op+" failed",
		"request_id", request.GetRequestID(ctx),
		"code", string(dErrors.CodeOf(err)),
		"error", err,
	)
	httputil.WriteError(w, err)
}
