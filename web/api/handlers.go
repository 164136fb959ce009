package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hochfrequenz/llm-merge-orchestrator/internal/domain"
	"github.com/hochfrequenz/llm-merge-orchestrator/internal/orchestrator"
)

type queryRequest struct {
	Prompt             string   `json:"prompt"`
	Mode               string   `json:"mode,omitempty"`
	ModelIDs           []string `json:"modelIds,omitempty"`
	JudgeModelOverride string   `json:"judgeModelOverride,omitempty"`
}

type queryResponse struct {
	MergedAnswer    string                   `json:"mergedAnswer"`
	PerModelResults []domain.ModelCallResult `json:"perModelResults"`
	DebateRounds    []domain.DebateRound     `json:"debateRounds,omitempty"`
	TotalLatencyMs  int64                    `json:"totalLatencyMs"`
	RequestID       string                   `json:"requestId"`
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	modelIDs := req.ModelIDs
	if len(modelIDs) == 0 {
		modelIDs = s.deps.DefaultModelIDs
	}

	result, err := s.deps.Query.Orchestrate(r.Context(), req.Prompt, domain.Mode(req.Mode), modelIDs, req.JudgeModelOverride)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		MergedAnswer:    result.MergedAnswer,
		PerModelResults: result.PerModelResults,
		DebateRounds:    result.DebateRounds,
		TotalLatencyMs:  result.TotalLatencyMs,
		RequestID:       result.RequestID,
	})
}

func writeOrchestratorError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *orchestrator.BadInputError:
		writeError(w, http.StatusBadRequest, err.Error())
	case *orchestrator.AllModelsFailedError:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type generateImageRequest struct {
	Prompt  string `json:"prompt"`
	ModelID string `json:"modelId,omitempty"`
}

type generateImageResponse struct {
	ImageURL    string `json:"imageUrl,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	LatencyMs   int64  `json:"latencyMs"`
}

func (s *Server) generateImageHandler(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = s.deps.DefaultImageModel
	}

	result, err := s.deps.Image.CallImageModel(r.Context(), modelID, req.Prompt, s.deps.ImageTimeout)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, generateImageResponse{
		ImageURL:    result.ImageURL,
		ImageBase64: result.ImageBase64,
		LatencyMs:   result.LatencyMs,
	})
}

type submitResearchRequest struct {
	Query              string   `json:"query"`
	ModelIDs           []string `json:"modelIds,omitempty"`
	JudgeModelOverride string   `json:"judgeModelOverride,omitempty"`
}

type submitResearchResponse struct {
	JobID  string          `json:"jobId"`
	Status domain.JobStatus `json:"status"`
}

func (s *Server) submitResearchHandler(w http.ResponseWriter, r *http.Request) {
	var req submitResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	job := s.deps.Jobs.Create(req.Query, domain.JobOptions{
		ModelIDs:           req.ModelIDs,
		JudgeModelOverride: req.JudgeModelOverride,
	}, userIDFromRequest(r))

	if s.deps.Trigger != nil {
		s.deps.Trigger.Trigger()
	}

	writeJSON(w, http.StatusAccepted, submitResearchResponse{JobID: job.ID, Status: job.Status})
}

func (s *Server) getResearchHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job := s.deps.Jobs.Get(jobID, userIDFromRequest(r))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// userIDFromRequest reads the caller identity header. There is no
// authentication in this system; this is a best-effort attribution only.
func userIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
