package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/streak-ledger/internal/auth"
	"github.com/gdg-garage/streak-ledger/internal/ledger"
	"github.com/gdg-garage/streak-ledger/internal/streak"
)

type StreakHandler struct {
	ledger *ledger.Ledger
}

func NewStreakHandler(l *ledger.Ledger) *StreakHandler {
	return &StreakHandler{ledger: l}
}

type StreakOutput struct {
	Body streak.Snapshot
}

func (h *StreakHandler) HandleGetStreak(ctx context.Context, input *struct{}) (*StreakOutput, error) {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}

	snap, err := h.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to load streak: " + err.Error())
	}
	return &StreakOutput{Body: snap}, nil
}

type RecordStreakRequest struct {
	Body struct {
		CompletedAt time.Time `json:"completedAt" doc:"When the module was completed (ISO-8601)"`
		ModuleID    string    `json:"moduleId" doc:"Identifier of the completed module" minLength:"1" maxLength:"128"`
	}
}

type RecordStreakResponse struct {
	Body struct {
		Applied bool            `json:"applied" doc:"False when the day was already recorded"`
		Streak  streak.Snapshot `json:"streak"`
	}
}

func (h *StreakHandler) HandleRecordStreak(ctx context.Context, input *RecordStreakRequest) (*RecordStreakResponse, error) {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}
	if input.Body.CompletedAt.IsZero() {
		return nil, huma.Error400BadRequest("completedAt is required")
	}

	out, err := h.ledger.Record(ctx, userID, streak.Event{
		CompletedAt: input.Body.CompletedAt,
		ModuleID:    input.Body.ModuleID,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to record completion: " + err.Error())
	}

	res := &RecordStreakResponse{}
	res.Body.Applied = out.Applied
	res.Body.Streak = out.Snapshot
	return res, nil
}
