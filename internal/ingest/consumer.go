package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	pkgkafka "github.com/AaryaPoriya/QuantumCoders/pkg/kafka"
)

// EventTypeDeviceScan is the event type carried on the device scan topic.
const EventTypeDeviceScan = "device.scan"

// ScanHandler adapts the ingester to the Kafka consumer. Scans that are
// rejected for business reasons (unbound device, unknown barcode) are dropped
// with a log line rather than retried: redelivery cannot make them valid.
func ScanHandler(ingester *Ingester, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, event *pkgkafka.Event) error {
		if event.EventType != EventTypeDeviceScan {
			logger.DebugContext(ctx, "skipping event of unexpected type",
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		var scan domain.ScanEvent
		if err := event.UnmarshalData(&scan); err != nil {
			logger.ErrorContext(ctx, "malformed scan event dropped",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return nil
		}

		err := ingester.Ingest(ctx, &scan)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, apperrors.ErrDeviceUnauthorized),
			errors.Is(err, apperrors.ErrNotFound),
			errors.Is(err, apperrors.ErrNotOpen),
			errors.Is(err, apperrors.ErrInvalidOperation):
			logger.WarnContext(ctx, "scan event dropped",
				slog.String("device_id", scan.DeviceID),
				slog.Int64("device_seq", scan.DeviceSeq),
				slog.String("error", err.Error()),
			)
			return nil
		default:
			// Transient failures (storage, CartBusy) are worth a redelivery.
			return fmt.Errorf("ingest scan from %s: %w", scan.DeviceID, err)
		}
	}
}
