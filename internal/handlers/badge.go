package handlers

import (
	"context"
	"log"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/streak-ledger/internal/auth"
	"github.com/gdg-garage/streak-ledger/internal/ledger"
	"github.com/gdg-garage/streak-ledger/internal/notifier"
)

type BadgeHandler struct {
	ledger   *ledger.Ledger
	notifier notifier.Notifier
}

// NewBadgeHandler builds the badge operations. n may be nil.
func NewBadgeHandler(l *ledger.Ledger, n notifier.Notifier) *BadgeHandler {
	return &BadgeHandler{ledger: l, notifier: n}
}

type GrantBadgeRequest struct {
	Body struct {
		Badge string `json:"badge" doc:"Name of the badge to grant" minLength:"1" maxLength:"64"`
	}
}

type GrantBadgeResponse struct {
	Body struct {
		Success bool `json:"success"`
		Granted bool `json:"granted" doc:"False when the badge was already owned"`
		Badge   struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"badge"`
		XPAwarded int `json:"xpAwarded"`
	}
}

func (h *BadgeHandler) HandleGrantBadge(ctx context.Context, input *GrantBadgeRequest) (*GrantBadgeResponse, error) {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}

	grant, err := h.ledger.GrantBadge(ctx, userID, input.Body.Badge)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to grant badge: " + err.Error())
	}

	if grant.Granted && h.notifier != nil {
		if err := h.notifier.NotifyBadge(userID, grant.Badge, grant.XPAwarded); err != nil {
			log.Printf("Failed to send notification: %v", err)
			// Don't fail the request here as the grant is recorded
		}
	}

	res := &GrantBadgeResponse{}
	res.Body.Success = true
	res.Body.Granted = grant.Granted
	res.Body.Badge.ID = grant.Badge.ID
	res.Body.Badge.Name = grant.Badge.Name
	res.Body.XPAwarded = grant.XPAwarded
	return res, nil
}

type ListBadgesResponse struct {
	Body struct {
		Badges []string `json:"badges"`
	}
}

func (h *BadgeHandler) HandleListBadges(ctx context.Context, input *struct{}) (*ListBadgesResponse, error) {
	userID, ok := auth.UserID(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}

	names, err := h.ledger.Badges(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list badges: " + err.Error())
	}

	res := &ListBadgesResponse{}
	res.Body.Badges = names
	return res, nil
}
