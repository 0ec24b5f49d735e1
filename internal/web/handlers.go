package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/fileimport/internal/core"
	"github.com/JonMunkholm/fileimport/internal/importer"
	"github.com/JonMunkholm/fileimport/internal/logging"
)

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status string                 `json:"status"`
	Runs   importer.LimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Runs: s.runner.Status()})
}

// jobSummary describes one job in GET /api/jobs.
type jobSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Directory   string `json:"directory"`
	Pattern     string `json:"pattern,omitempty"`
	Format      string `json:"format"`
	HeaderRows  int    `json:"header_rows"`
	BatchSize   int    `json:"batch_size"`
	CommitMode  string `json:"commit_mode"`
	Columns     int    `json:"columns"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.runner.Jobs()
	out := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobSummary{
			Name:        j.Name,
			Description: j.Description,
			Directory:   j.Directory,
			Pattern:     j.Pattern,
			Format:      j.Format,
			HeaderRows:  j.HeaderRows,
			BatchSize:   j.BatchSize,
			CommitMode:  j.CommitMode,
			Columns:     len(j.Columns),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// fileResponse is the outcome of one file in a run response.
type fileResponse struct {
	Path       string `json:"path"`
	RunID      string `json:"run_id"`
	HeaderRows int    `json:"header_rows"`
	DataRows   int    `json:"data_rows"`
	FooterRows int    `json:"footer_rows"`
	BytesRead  int64  `json:"bytes_read"`
	DurationMS int64  `json:"duration_ms"`
	Failed     bool   `json:"failed"`
	Code       string `json:"code,omitempty"`
	Row        int    `json:"row,omitempty"`
	Column     int    `json:"column,omitempty"`
}

// runResponse is the body of POST /api/jobs/{name}/run.
type runResponse struct {
	Job        string         `json:"job"`
	Dir        string         `json:"dir"`
	Successful bool           `json:"successful"`
	Message    string         `json:"message"`
	Files      []fileResponse `json:"files"`
}

func newRunResponse(job string, res *importer.Result) runResponse {
	out := runResponse{
		Job:        job,
		Dir:        res.Dir,
		Successful: res.Successful,
		Message:    res.Message,
		Files:      make([]fileResponse, 0, len(res.Files)),
	}
	for _, f := range res.Files {
		fr := fileResponse{
			Path:       f.Path,
			RunID:      f.RunID.String(),
			HeaderRows: f.HeaderRows,
			DataRows:   f.DataRows,
			FooterRows: f.FooterRows,
			BytesRead:  f.BytesRead,
			DurationMS: f.Duration.Milliseconds(),
		}
		if f.Err != nil {
			fr.Failed = true
			fr.Code, fr.Row, fr.Column = failure(f.Err)
		}
		out.Files = append(out.Files, fr)
	}
	return out
}

// failure describes a file error without its text, which may quote file
// content. The full error is in the server log.
func failure(err error) (code string, row, column int) {
	code = core.ErrorCode(err)
	if code == "" {
		code = "file.failed"
	}
	var re *core.RowError
	if errors.As(err, &re) {
		row, column = re.Row, re.Column
	}
	return code, row, column
}

// handleRunJob runs a job synchronously. The optional dir query parameter
// selects a directory below the job's directory.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dir := r.URL.Query().Get("dir")

	logger := logging.WithFields(r.Context(), "job", name)
	logger.Info("run requested", "dir", dir)

	res, err := s.runner.Run(r.Context(), name, dir)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newRunResponse(name, res))
}

// writeJSON encodes v as JSON with status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
