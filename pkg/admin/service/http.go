package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/admin"
	apperrors "github.com/chainsafe/rwa-bridge/pkg/app/errors"
	apphttp "github.com/chainsafe/rwa-bridge/pkg/app/http"
	"github.com/chainsafe/rwa-bridge/pkg/auth"
	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/db"
)

const maxBodySize = 1 << 20

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service  Service
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers the bridge endpoints on the given chi router.
// Reads are public; everything that changes state needs a signed request.
func RegisterRoutes(r chi.Router, service Service, verifier *auth.Verifier, logger *zap.Logger) {
	h := &HTTP{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}

	r.Get("/bridges", apphttp.HandleError(h.listBridges))
	r.Get("/bridges/{id}", apphttp.HandleError(h.getBridge))
	r.Get("/bridges/{id}/events", apphttp.HandleError(h.listEvents))
	r.Get("/bridges/{id}/tokens/{token}", apphttp.HandleError(h.getTokenLimits))
	r.Get("/bridges/{id}/fee", apphttp.HandleError(h.estimateFee))
	r.Get("/chains/{chain}/tokens/{token}/balances/{account}", apphttp.HandleError(h.balanceOf))
	r.Get("/transfers", apphttp.HandleError(h.listTransfers))
	r.Get("/transfers/{id}", apphttp.HandleError(h.getTransfer))

	r.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)

		r.Post("/bridges/{id}/pause", apphttp.HandleError(h.pause))
		r.Post("/bridges/{id}/unpause", apphttp.HandleError(h.unpause))
		r.Put("/bridges/{id}/owner", apphttp.HandleError(h.transferOwnership))
		r.Post("/bridges/{id}/tokens", apphttp.HandleError(h.addToken))
		r.Delete("/bridges/{id}/tokens/{token}", apphttp.HandleError(h.removeToken))
		r.Put("/bridges/{id}/tokens/{token}/max-transfer", apphttp.HandleError(h.updateMaxTransfer))
		r.Put("/bridges/{id}/tokens/{token}/daily-limit", apphttp.HandleError(h.updateDailyLimit))
		r.Put("/bridges/{id}/routes/{chain}", apphttp.HandleError(h.setRoute))
		r.Delete("/bridges/{id}/routes/{chain}", apphttp.HandleError(h.removeRoute))
		r.Post("/bridges/{id}/rescue/{token}", apphttp.HandleError(h.rescue))
		r.Post("/bridges/{id}/transfers", apphttp.HandleError(h.bridgeTokens))
		r.Post("/chains/{chain}/tokens/{token}/approve", apphttp.HandleError(h.approve))
		r.Post("/transfers/{id}/retry", apphttp.HandleError(h.retryTransfer))
	})
}

func (h *HTTP) listBridges(w http.ResponseWriter, r *http.Request) error {
	resp, err := h.service.ListBridges(r.Context())
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) getBridge(w http.ResponseWriter, r *http.Request) error {
	resp, err := h.service.GetBridge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) listEvents(w http.ResponseWriter, r *http.Request) error {
	resp, err := h.service.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) getTokenLimits(w http.ResponseWriter, r *http.Request) error {
	tok, err := parseAddress(chi.URLParam(r, "token"), "token")
	if err != nil {
		return err
	}
	resp, err := h.service.GetTokenLimits(r.Context(), chi.URLParam(r, "id"), tok)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

// estimateFee reads the transfer from the query string; fee is not needed
func (h *HTTP) estimateFee(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	tok, err := parseAddress(q.Get("token"), "token")
	if err != nil {
		return err
	}
	recipient, err := parseAddress(q.Get("recipient"), "recipient")
	if err != nil {
		return err
	}
	amount, err := parseAmount(q.Get("amount"), "amount")
	if err != nil {
		return err
	}
	resp, err := h.service.EstimateFee(r.Context(), chi.URLParam(r, "id"), TransferParams{
		Token:     tok,
		Recipient: recipient,
		Chain:     q.Get("chain"),
		Amount:    amount,
	})
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) balanceOf(w http.ResponseWriter, r *http.Request) error {
	tok, err := parseAddress(chi.URLParam(r, "token"), "token")
	if err != nil {
		return err
	}
	account, err := parseAddress(chi.URLParam(r, "account"), "account")
	if err != nil {
		return err
	}
	resp, err := h.service.BalanceOf(r.Context(), chi.URLParam(r, "chain"), tok, account)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) listTransfers(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	filter := TransferFilter{
		Path:   q.Get("path"),
		Status: db.TransferStatus(q.Get("status")),
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return apperrors.BadRequestError(err, "invalid limit")
		}
		filter.Limit = limit
	}
	resp, err := h.service.ListTransfers(r.Context(), filter)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) getTransfer(w http.ResponseWriter, r *http.Request) error {
	resp, err := h.service.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) pause(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Pause(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) unpause(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Unpause(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) transferOwnership(w http.ResponseWriter, r *http.Request) error {
	var req admin.OwnerRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	if err := h.service.TransferOwnership(r.Context(), caller(r), chi.URLParam(r, "id"), common.HexToAddress(req.NewOwner)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) addToken(w http.ResponseWriter, r *http.Request) error {
	var req admin.AddTokenRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	var maxTransferSize, dailyLimit *uint256.Int
	if req.MaxTransferSize != "" || req.DailyLimit != "" {
		var err error
		if maxTransferSize, err = parseAmount(req.MaxTransferSize, "max_transfer_size"); err != nil {
			return err
		}
		if dailyLimit, err = parseAmount(req.DailyLimit, "daily_limit"); err != nil {
			return err
		}
	}
	err := h.service.AddSupportedToken(r.Context(), caller(r), chi.URLParam(r, "id"),
		common.HexToAddress(req.Token), maxTransferSize, dailyLimit)
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) removeToken(w http.ResponseWriter, r *http.Request) error {
	tok, err := parseAddress(chi.URLParam(r, "token"), "token")
	if err != nil {
		return err
	}
	if err := h.service.RemoveSupportedToken(r.Context(), caller(r), chi.URLParam(r, "id"), tok); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) updateMaxTransfer(w http.ResponseWriter, r *http.Request) error {
	tok, amount, err := h.tokenAmount(r)
	if err != nil {
		return err
	}
	if err := h.service.UpdateMaxTransferSize(r.Context(), caller(r), chi.URLParam(r, "id"), tok, amount); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) updateDailyLimit(w http.ResponseWriter, r *http.Request) error {
	tok, amount, err := h.tokenAmount(r)
	if err != nil {
		return err
	}
	if err := h.service.UpdateDailyLimit(r.Context(), caller(r), chi.URLParam(r, "id"), tok, amount); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) setRoute(w http.ResponseWriter, r *http.Request) error {
	var req admin.RouteRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	err := h.service.SetRoute(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "chain"), req.Counterpart)
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) removeRoute(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.RemoveRoute(r.Context(), caller(r), chi.URLParam(r, "id"), chi.URLParam(r, "chain")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) rescue(w http.ResponseWriter, r *http.Request) error {
	tok, err := parseAddress(chi.URLParam(r, "token"), "token")
	if err != nil {
		return err
	}
	resp, err := h.service.RescueTokens(r.Context(), caller(r), chi.URLParam(r, "id"), tok)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) bridgeTokens(w http.ResponseWriter, r *http.Request) error {
	var req admin.TransferRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		return err
	}
	fee, err := parseAmount(req.Fee, "fee")
	if err != nil {
		return err
	}
	resp, err := h.service.BridgeTokens(r.Context(), caller(r), chi.URLParam(r, "id"), TransferParams{
		Token:     common.HexToAddress(req.Token),
		Recipient: common.HexToAddress(req.Recipient),
		Chain:     req.Chain,
		Amount:    amount,
		Fee:       fee,
	})
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusAccepted, resp)
	return nil
}

func (h *HTTP) approve(w http.ResponseWriter, r *http.Request) error {
	tok, err := parseAddress(chi.URLParam(r, "token"), "token")
	if err != nil {
		return err
	}
	var req admin.ApproveRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		return err
	}
	err = h.service.Approve(r.Context(), caller(r), chi.URLParam(r, "chain"), tok, common.HexToAddress(req.Spender), amount)
	if err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) retryTransfer(w http.ResponseWriter, r *http.Request) error {
	resp, err := h.service.RetryTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, resp)
	return nil
}

func (h *HTTP) tokenAmount(r *http.Request) (common.Address, *uint256.Int, error) {
	tok, err := parseAddress(chi.URLParam(r, "token"), "token")
	if err != nil {
		return common.Address{}, nil, err
	}
	var req admin.AmountRequest
	if err := h.decode(r, &req); err != nil {
		return common.Address{}, nil, err
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		return common.Address{}, nil, err
	}
	return tok, amount, nil
}

// decode reads and validates a JSON body
func (h *HTTP) decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(v); err != nil {
		h.logger.Debug("Request failed validation",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return apperrors.BadRequestError(err, "invalid request: "+err.Error())
	}
	return nil
}

// caller is the principal set by the auth middleware
func caller(r *http.Request) bridge.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func parseAddress(s, field string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, apperrors.BadRequestError(nil, fmt.Sprintf("invalid %s address", field))
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s, field string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, apperrors.BadRequestError(err, fmt.Sprintf("invalid %s", field))
	}
	return v, nil
}
