package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"hostplane/internal/approvals"
	"hostplane/internal/common"
	"hostplane/internal/policy"
	"hostplane/internal/store"

	"github.com/gorilla/mux"
)

func callerIdOf(r *http.Request) string {
	userId, _ := r.Context().Value(common.HttpContextUserId).(string)
	return userId
}

// sendEngineError maps engine errors to status codes so that every
// handler reports refusals the same way
func sendEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrorValidation), errors.Is(err, policy.ErrorPolicyNotFound):
		common.SendHttpFailResponse(w, r, http.StatusBadRequest, "failed to validate request", err)
	case errors.Is(err, ErrorForbidden):
		common.SendHttpFailResponse(w, r, http.StatusForbidden, "decision not allowed", err)
	case errors.Is(err, ErrorExpired):
		common.SendHttpFailResponse(w, r, http.StatusGone, "request expired", err)
	case errors.Is(err, ErrorNotPending):
		common.SendHttpFailResponse(w, r, http.StatusConflict, "request already resolved", err)
	case errors.Is(err, store.ErrorConflict):
		common.SendHttpFailResponse(w, r, http.StatusConflict, "too much contention, retry the request", err)
	case errors.Is(err, store.ErrorNotFound):
		common.SendHttpFailResponse(w, r, http.StatusNotFound, "request not found", err)
	default:
		common.SendHttpFailResponse(w, r, http.StatusInternalServerError, "failed to process request", err)
	}
}

func getSubmitRequestHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			common.SendHttpFailResponse(w, r, http.StatusBadRequest, "failed to read request body", err)
			return
		}
		var req submitRequestBody
		if err := json.Unmarshal(body, &req); err != nil {
			common.SendHttpFailResponse(w, r, http.StatusBadRequest, "failed to parse request body", err)
			return
		}
		record, err := engine.Submit(SubmitOpts{
			RequesterId:   callerIdOf(r),
			OperationType: approvals.OperationType(req.OperationType),
			Payload:       req.Payload,
		})
		if err != nil {
			sendEngineError(w, r, err)
			return
		}
		common.SendHttpSuccessResponse(w, r, http.StatusCreated, "ok", record)
	}
}

func getListRequestsHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ListFilter{
			Status:      approvals.Status(r.URL.Query().Get("status")),
			RequesterId: r.URL.Query().Get("requesterId"),
		}
		if filter.Status != "" && !filter.Status.IsValid() {
			common.SendHttpFailResponse(w, r, http.StatusBadRequest, "failed to parse status filter", fmt.Errorf("unknown status '%s'", filter.Status))
			return
		}
		records, err := engine.List(filter)
		if err != nil {
			sendEngineError(w, r, err)
			return
		}
		common.SendHttpSuccessResponse(w, r, http.StatusOK, "ok", records)
	}
}

func getGetRequestHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := engine.Get(mux.Vars(r)["requestId"])
		if err != nil {
			sendEngineError(w, r, err)
			return
		}
		common.SendHttpSuccessResponse(w, r, http.StatusOK, "ok", record)
	}
}

func getApproveRequestHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := engine.Approve(mux.Vars(r)["requestId"], callerIdOf(r))
		if err != nil {
			sendEngineError(w, r, err)
			return
		}
		common.SendHttpSuccessResponse(w, r, http.StatusOK, "ok", record)
	}
}

func getRejectRequestHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := engine.Reject(mux.Vars(r)["requestId"], callerIdOf(r))
		if err != nil {
			sendEngineError(w, r, err)
			return
		}
		common.SendHttpSuccessResponse(w, r, http.StatusOK, "ok", record)
	}
}

func getCancelRequestHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := engine.Cancel(mux.Vars(r)["requestId"], callerIdOf(r))
		if err != nil {
			sendEngineError(w, r, err)
			return
		}
		common.SendHttpSuccessResponse(w, r, http.StatusOK, "ok", record)
	}
}

func getVerifyRequestHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, invalid, err := engine.VerifyDecisions(mux.Vars(r)["requestId"])
		if err != nil {
			sendEngineError(w, r, err)
			return
		}
		common.SendHttpSuccessResponse(w, r, http.StatusOK, "ok", verifyResponse{
			RequestId:         record.Id,
			Valid:             len(invalid) == 0,
			InvalidSignatures: invalid,
		})
	}
}
