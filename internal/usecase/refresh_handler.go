package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"BankStats/internal/domain/models"
	applogger "BankStats/pkg/logger"

	"github.com/google/uuid"
)

// RefreshCommandHandler runs a refresh for each command read from the refresh topic.
// It implements the kafka MessageHandler contract.
type RefreshCommandHandler struct {
	topic   string
	refresh *RefreshService
	logger  *applogger.Logger
}

func NewRefreshCommandHandler(topic string, refresh *RefreshService, logger *applogger.Logger) *RefreshCommandHandler {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &RefreshCommandHandler{topic: topic, refresh: refresh, logger: logger}
}

func (h *RefreshCommandHandler) Topic() string { return h.topic }

// Handle decodes a RefreshCommand. Malformed payloads are returned as errors
// so they end up in the DLQ; a running refresh or a spent budget is not
// worth retrying and is acknowledged.
func (h *RefreshCommandHandler) Handle(ctx context.Context, payload []byte) error {
	var cmd models.RefreshCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decode refresh command: %w", err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	res, err := h.refresh.Refresh(ctx, cmd.Tickers)
	switch {
	case errors.Is(err, models.ErrRefreshInProgress):
		h.logger.Info("refresh command skipped, refresh running", applogger.String("command_id", cmd.ID))
		return nil
	case errors.Is(err, models.ErrBudgetExhausted), errors.Is(err, models.ErrMissingData):
		h.logger.Warn("refresh command produced no report", applogger.String("command_id", cmd.ID), applogger.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("refresh command %s: %w", cmd.ID, err)
	}

	h.logger.Info("refresh command handled",
		applogger.String("command_id", cmd.ID),
		applogger.String("report_id", res.ReportID),
		applogger.Strings("fetched", res.Fetched),
	)
	return nil
}
