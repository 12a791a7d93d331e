package handle

import (
	"errors"
	"net/http"
	"strconv"

	"group-ride/internal/group-service/core/ports"
	"group-ride/internal/membership"
	"group-ride/internal/mylogger"
	"group-ride/internal/websocketdto"
)

// UserIDHeader carries the authenticated rider, set by the auth middleware.
const UserIDHeader = "X-UserId"

type GroupsHandler struct {
	groupService ports.IGroupService
	log          mylogger.Logger
}

func NewGroupsHandler(gs ports.IGroupService, log mylogger.Logger) *GroupsHandler {
	return &GroupsHandler{
		groupService: gs,
		log:          log,
	}
}

// Members serves the fallback poller with the same frame the socket sends.
func (gh *GroupsHandler) Members() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("group_id")

		snap, err := gh.groupService.Roster(r.Context(), groupID, r.Header.Get(UserIDHeader))
		if err != nil {
			gh.fail(w, "get_members", err)
			return
		}

		data, err := websocketdto.Encode(snap)
		if err != nil {
			gh.fail(w, "get_members", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (gh *GroupsHandler) Approve() http.HandlerFunc {
	return gh.setStatus(membership.StatusApproved)
}

func (gh *GroupsHandler) Reject() http.HandlerFunc {
	return gh.setStatus(membership.StatusRejected)
}

func (gh *GroupsHandler) setStatus(status membership.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("group_id")
		userID := r.PathValue("user_id")

		err := gh.groupService.SetStatus(r.Context(), r.Header.Get(UserIDHeader), groupID, userID, status)
		if err != nil {
			gh.fail(w, "set_member_status", err)
			return
		}

		jsonResponse(w, http.StatusOK, map[string]string{
			"groupId": groupID,
			"userId":  userID,
			"status":  string(status),
		})
	}
}

// EndRide is DELETE /groups/{group_id}.
func (gh *GroupsHandler) EndRide() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("group_id")

		if err := gh.groupService.EndGroup(r.Context(), r.Header.Get(UserIDHeader), groupID); err != nil {
			gh.fail(w, "end_group", err)
			return
		}
		jsonResponse(w, http.StatusNoContent, nil)
	}
}

// Messages lists chat history after the after_id query parameter.
func (gh *GroupsHandler) Messages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := r.PathValue("group_id")

		afterID, err := queryInt(r, "after_id")
		if err != nil {
			JsonError(w, http.StatusBadRequest, errors.New("after_id must be an integer"))
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			JsonError(w, http.StatusBadRequest, errors.New("limit must be an integer"))
			return
		}

		msgs, err := gh.groupService.ChatHistory(r.Context(), groupID, r.Header.Get(UserIDHeader), afterID, int(limit))
		if err != nil {
			gh.fail(w, "chat_history", err)
			return
		}
		if msgs == nil {
			msgs = []websocketdto.ChatMessage{}
		}
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"groupId":  groupID,
			"messages": msgs,
		})
	}
}

func (gh *GroupsHandler) fail(w http.ResponseWriter, action string, err error) {
	code, public := statusFor(err)
	if code == http.StatusInternalServerError {
		gh.log.Action(action).Error("request failed", err)
	}
	JsonError(w, code, public)
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
