package api

import (
	"time"

	"flipbook/internal/batch"
	"flipbook/internal/history"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type CreateTaskRequest struct {
	Kind    string   `json:"kind"`
	File    string   `json:"file,omitempty"`
	Frame   *int     `json:"frame,omitempty"`
	Inputs  []string `json:"inputs,omitempty"`
	OutPath string   `json:"out_path,omitempty"`
}

type FileResponse struct {
	Index      int    `json:"index"`
	Source     string `json:"source"`
	Output     string `json:"output,omitempty"`
	Code       int    `json:"code"`
	Error      string `json:"error,omitempty"`
	Frames     int    `json:"frames"`
	Bytes      int64  `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
}

type OutcomeResponse struct {
	Code       int            `json:"code"`
	OutputRoot string         `json:"output_root"`
	Processed  int            `json:"processed"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Files      []FileResponse `json:"files"`
}

type TaskResponse struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	State     string           `json:"state"`
	Progress  float64          `json:"progress"`
	CreatedAt string           `json:"created_at"`
	Outcome   *OutcomeResponse `json:"outcome,omitempty"`
}

type TasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

type RunResponse struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	OutputRoot string         `json:"output_root"`
	Code       int            `json:"code"`
	Total      int            `json:"total"`
	Processed  int            `json:"processed"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
	Files      []FileResponse `json:"files,omitempty"`
}

type HistoryResponse struct {
	Runs []RunResponse `json:"runs"`
}

func taskToResponse(e *taskEntry) TaskResponse {
	resp := TaskResponse{
		ID:        e.task.ID(),
		Kind:      e.kind,
		State:     e.task.State().String(),
		Progress:  e.task.Progress(),
		CreatedAt: e.created.UTC().Format(time.RFC3339),
	}
	if out := e.result(); out != nil {
		resp.Outcome = OutcomeToResponse(*out)
	}
	return resp
}

func OutcomeToResponse(out batch.Outcome) *OutcomeResponse {
	resp := &OutcomeResponse{
		Code:       out.Code,
		OutputRoot: out.OutputRoot,
		Processed:  out.Processed,
		Failed:     out.Failed,
		Skipped:    out.Skipped,
		Files:      make([]FileResponse, len(out.Files)),
	}
	for i, f := range out.Files {
		fr := FileResponse{
			Index:      f.Index,
			Source:     f.Source,
			Output:     f.Output,
			Code:       f.Code,
			Frames:     f.Frames,
			Bytes:      f.Bytes,
			DurationMS: f.Duration.Milliseconds(),
		}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		resp.Files[i] = fr
	}
	return resp
}

func RunToResponse(r *history.Run) RunResponse {
	resp := RunResponse{
		ID:         r.ID,
		Kind:       r.Kind,
		OutputRoot: r.OutputRoot,
		Code:       r.Code,
		Total:      r.Total,
		Processed:  r.Processed,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
	}
	for _, f := range r.Files {
		resp.Files = append(resp.Files, FileResponse{
			Index:      f.Index,
			Source:     f.Source,
			Output:     f.Output,
			Code:       f.Code,
			Error:      f.Error,
			Frames:     f.Frames,
			Bytes:      f.Bytes,
			DurationMS: f.Duration.Milliseconds(),
		})
	}
	return resp
}
