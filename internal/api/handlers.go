package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	xerrors "tasks-api/internal/errors"
	"tasks-api/internal/observability/alerting"
	"tasks-api/internal/requestid"
	"tasks-api/internal/task"
)

const (
	maxBodyBytes  = 1 << 20
	statusMessage = "task API is running"
	healthTimeout = 2 * time.Second
)

type createTaskRequest struct {
	Title *string `json:"title"`
}

type updateTaskRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var (
	errTitleRequired     = xerrors.New(task.CodeTaskValidation, "title is required")
	errCompletedRequired = xerrors.New(task.CodeTaskValidation, "completed is required")
	errShuttingDown      = xerrors.New(xerrors.CodeInitializationFailure, "server is shutting down", xerrors.WithAlert(false))
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, statusMessage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.svc.Ping(ctx); err != nil {
		s.log.WarnContext(ctx, "健康检查失败", slog.Any("error", err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "unavailable")
		return
	}
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Title == nil {
		s.writeError(w, r, errTitleRequired)
		return
	}

	created, err := s.svc.Create(r.Context(), *req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Title == nil {
		s.writeError(w, r, errTitleRequired)
		return
	}
	if req.Completed == nil {
		s.writeError(w, r, errCompletedRequired)
		return
	}

	updated, err := s.svc.Update(r.Context(), id, *req.Title, *req.Completed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "task deleted"})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, task.ErrInvalidID
	}
	return id, nil
}

// decodeJSON 严格解析请求体：拒绝未知字段、类型不符、多余数据以及超过 1 MiB 的请求。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "request body too large")
		}
		if stdErrors.Is(err, io.EOF) {
			return xerrors.New(xerrors.CodeInvalidArgument, "request body is empty")
		}
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !stdErrors.Is(err, io.EOF) {
		return xerrors.New(xerrors.CodeInvalidArgument, "request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 记录失败详情，按错误码映射状态码并返回 JSON 错误体。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	reqID := requestid.FromContext(ctx)

	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Detail()
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.log.LogAttrs(ctx, level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("code", string(code)),
		slog.String("detail", message),
		slog.String("request_id", reqID),
	)

	if status >= http.StatusInternalServerError && s.alerts != nil && xerrors.ShouldAlert(err) {
		if notifyErr := s.alerts.Notify(ctx, alerting.FromError(err, routeLabel(r), reqID)); notifyErr != nil {
			s.log.WarnContext(ctx, "告警发送失败", slog.Any("error", notifyErr))
		}
	}

	writeJSON(w, status, errorResponse{Error: message, Code: string(code)})
}

func statusFor(code xerrors.Code) int {
	switch code {
	case task.CodeTaskValidation, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case task.CodeTaskNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
