package services

import (
	"context"
	"time"

	"group-ride/internal/group-service/core/domain/dto"
	"group-ride/internal/group-service/core/ports"
)

type OverviewService struct {
	router *Router
	now    func() time.Time
}

var _ ports.IOverviewService = (*OverviewService)(nil)

func NewOverviewService(router *Router) *OverviewService {
	return &OverviewService{router: router, now: time.Now}
}

// GetSystemOverview summarizes the live rosters. Nothing here touches the
// stores: ended rides are gone from the overview immediately.
func (ovs *OverviewService) GetSystemOverview(ctx context.Context) (dto.SystemOverview, error) {
	if err := ctx.Err(); err != nil {
		return dto.SystemOverview{}, err
	}

	groups := ovs.router.Summaries()
	overview := dto.SystemOverview{
		Timestamp: ovs.now().UTC().Format(time.RFC3339),
		Groups:    groups,
	}
	overview.Metrics.ActiveRides = len(groups)
	for _, g := range groups {
		overview.Metrics.Riders += g.Approved
		overview.Metrics.RidingNow += g.Riding
		overview.Metrics.PendingRiders += g.Pending
	}
	return overview, nil
}
