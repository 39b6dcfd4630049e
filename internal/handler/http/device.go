package http

import (
	"log/slog"
	"net/http"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/internal/ingest"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	"github.com/AaryaPoriya/QuantumCoders/pkg/httputil"
	"github.com/AaryaPoriya/QuantumCoders/pkg/validator"
)

// DeviceHandler accepts scan telemetry posted directly by in-cart devices.
// Devices also reach the system through the Kafka scan topic; this endpoint
// is the low-latency direct path.
type DeviceHandler struct {
	ingester *ingest.Ingester
	logger   *slog.Logger
}

// NewDeviceHandler creates the device HTTP handler.
func NewDeviceHandler(ingester *ingest.Ingester, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{ingester: ingester, logger: logger}
}

// ScanRequest is the body for POST /device/scans.
type ScanRequest struct {
	Barcode   string `json:"barcode" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=in out"`
	DeviceSeq int64  `json:"device_seq" validate:"gte=0"`
}

// Scan handles POST /api/v1/device/scans. The device receives an
// acknowledgement only; cart state never flows back to it.
func (h *DeviceHandler) Scan(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := deviceIDFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.DeviceUnauthorized("unknown"), h.logger)
		return
	}

	var req ScanRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	err := h.ingester.Ingest(r.Context(), &domain.ScanEvent{
		DeviceID:  deviceID,
		Barcode:   req.Barcode,
		Direction: domain.ScanDirection(req.Direction),
		DeviceSeq: req.DeviceSeq,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
