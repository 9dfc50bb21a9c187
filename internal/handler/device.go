package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/lumeochat/messenger-go/internal/errors"
	"github.com/lumeochat/messenger-go/internal/middleware"
	"github.com/lumeochat/messenger-go/internal/model"
	"github.com/lumeochat/messenger-go/internal/repository"
)

// DeviceHandler manages push token registrations. Registration is an
// upsert keyed on the token: a token moving between accounts follows the
// most recent login.
type DeviceHandler struct {
	devices repository.DeviceRepository
}

func NewDeviceHandler(devices repository.DeviceRepository) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Register)
	r.Delete("/", h.Unregister)

	return r
}

// POST /devices
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		PushToken string `json:"pushToken"`
		Platform  string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidArgument("body", "malformed JSON"))
		return
	}
	if req.PushToken == "" {
		writeError(w, apperrors.MissingRequired("pushToken"))
		return
	}

	platform := model.DevicePlatform(req.Platform)
	switch platform {
	case model.DevicePlatformIOS, model.DevicePlatformAndroid, model.DevicePlatformWeb:
	default:
		writeError(w, apperrors.InvalidArgument("platform", "must be ios, android, or web"))
		return
	}

	device, err := h.devices.Upsert(r.Context(), model.UpsertDeviceParams{
		UserID:    user.ID,
		PushToken: req.PushToken,
		Platform:  platform,
	})
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// DELETE /devices
func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req struct {
		PushToken string `json:"pushToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidArgument("body", "malformed JSON"))
		return
	}
	if req.PushToken == "" {
		writeError(w, apperrors.MissingRequired("pushToken"))
		return
	}

	if err := h.devices.DeleteByToken(r.Context(), user.ID, req.PushToken); err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
