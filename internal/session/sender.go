package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AaryaPoriya/QuantumCoders/pkg/httpclient"
)

// OTPSender delivers a one-time passcode to a mobile number. The delivery
// channel is an external collaborator; implementations must not block the
// verification flow on slow gateways beyond their own client timeout.
type OTPSender interface {
	Send(ctx context.Context, mobileNumber, code string) error
}

// SMSGatewaySender posts passcodes to an HTTP SMS gateway behind a circuit
// breaker, so a flapping gateway degrades to fast failures instead of
// stalling every OTP request.
type SMSGatewaySender struct {
	client *httpclient.CircuitBreakerClient
	url    string
	sender string
	logger *slog.Logger
}

// NewSMSGatewaySender creates a gateway-backed sender.
func NewSMSGatewaySender(client *httpclient.CircuitBreakerClient, url, sender string, logger *slog.Logger) *SMSGatewaySender {
	return &SMSGatewaySender{client: client, url: url, sender: sender, logger: logger}
}

type smsPayload struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// Send posts the passcode to the gateway.
func (s *SMSGatewaySender) Send(ctx context.Context, mobileNumber, code string) error {
	payload := smsPayload{
		To:      mobileNumber,
		From:    s.sender,
		Message: fmt.Sprintf("Your shopping cart verification code is %s. It expires in 5 minutes.", code),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	resp, err := s.client.Post(ctx, s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	s.logger.DebugContext(ctx, "otp sent", slog.String("mobile_number", mobileNumber))
	return nil
}

// LogSender writes the passcode to the log instead of delivering it. For
// local development only.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the passcode.
func (s *LogSender) Send(ctx context.Context, mobileNumber, code string) error {
	s.logger.InfoContext(ctx, "otp issued (log sender)",
		slog.String("mobile_number", mobileNumber),
		slog.String("code", code),
	)
	return nil
}
