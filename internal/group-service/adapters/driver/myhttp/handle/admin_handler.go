package handle

import (
	"context"
	"net/http"
	"time"

	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/mylogger"
)

const WaitTime = 10

type AdminHandler struct {
	overviewService ports.IOverviewService
	mylog           mylogger.Logger
}

func NewAdminHandler(mylog mylogger.Logger, overviewService ports.IOverviewService) *AdminHandler {
	return &AdminHandler{
		overviewService: overviewService,
		mylog:           mylog,
	}
}

func (ah *AdminHandler) GetSystemOverview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), WaitTime*time.Second)
		defer cancel()

		overview, err := ah.overviewService.GetSystemOverview(ctx)
		if err != nil {
			ah.mylog.Action("get_system_overview").Error("Failed to get system overview", err)
			JsonError(w, http.StatusInternalServerError, err)
			return
		}

		jsonResponse(w, http.StatusOK, overview)
	}
}
