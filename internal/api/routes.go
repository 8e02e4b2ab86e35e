package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"flipbook/internal/batch"
	"flipbook/internal/dispatch"
	"flipbook/internal/history"
	"flipbook/internal/render"
)

func NewRouter(cfg ServerConfig, tasks *registry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tasks", createTaskHandler(cfg, tasks))
		r.Get("/tasks", listTasksHandler(tasks))
		r.Get("/tasks/{id}", getTaskHandler(tasks))
		r.Delete("/tasks/{id}", stopTaskHandler(tasks))
		r.Get("/history", listHistoryHandler(cfg))
		r.Get("/history/{id}", getRunHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func createTaskHandler(cfg ServerConfig, tasks *registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		task, err := cfg.Dispatcher.CreateFor(req.File, req.Kind, dispatch.Params{
			OutPath: req.OutPath,
			Frame:   req.Frame,
			Inputs:  req.Inputs,
		})
		switch {
		case errors.Is(err, dispatch.ErrLoadFailed):
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "LOAD_FAILED")
			return
		case errors.Is(err, dispatch.ErrUnknownKind),
			errors.Is(err, dispatch.ErrNoInputs),
			errors.Is(err, dispatch.ErrNoSource),
			errors.Is(err, render.ErrFrameRange):
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		e, err := tasks.start(task, req.Kind)
		if errors.Is(err, batch.ErrEmptyBatch) {
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NO_FILES")
			return
		}
		if err != nil {
			WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
			return
		}

		WriteJSON(w, http.StatusAccepted, taskToResponse(e))
	}
}

func listTasksHandler(tasks *registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := tasks.list()
		resp := TasksResponse{Tasks: make([]TaskResponse, len(entries))}
		for i, e := range entries {
			resp.Tasks[i] = taskToResponse(e)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getTaskHandler(tasks *registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := tasks.get(chi.URLParam(r, "id"))
		if !ok {
			WriteError(w, http.StatusNotFound, "task not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, taskToResponse(e))
	}
}

func stopTaskHandler(tasks *registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := tasks.get(chi.URLParam(r, "id"))
		if !ok {
			WriteError(w, http.StatusNotFound, "task not found", "NOT_FOUND")
			return
		}
		e.task.Stop()
		WriteJSON(w, http.StatusAccepted, taskToResponse(e))
	}
}

func listHistoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.History == nil {
			WriteError(w, http.StatusNotFound, "history disabled", "NOT_FOUND")
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		runs, err := cfg.History.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}
		resp := HistoryResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.History == nil {
			WriteError(w, http.StatusNotFound, "history disabled", "NOT_FOUND")
			return
		}
		run, err := cfg.History.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, history.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, RunToResponse(run))
	}
}
