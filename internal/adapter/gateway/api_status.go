package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/samber/lo"

	"roundtable/internal/usecase/debate"
)

// ModelInfo is one entry of GET /models.
type ModelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	Color     string `json:"color"`
	Avatar    string `json:"avatar"`
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
}

// HealthResponse is the JSON body returned by GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Participants  int    `json:"participants"`
	Available     int    `json:"available"`
	ActiveStreams int64  `json:"active_streams"`
}

func modelInfos(reg *debate.Registry) []ModelInfo {
	return lo.Map(reg.All(), func(p debate.Participant, _ int) ModelInfo {
		return ModelInfo{
			ID:        p.ID,
			Name:      p.Name,
			Model:     p.Model,
			Color:     p.Color,
			Avatar:    p.Avatar,
			Provider:  p.Provider,
			Available: p.Available,
		}
	})
}

// modelsHandler serves GET /models: the registry with per-participant
// availability.
func modelsHandler(reg *debate.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, modelInfos(reg))
	}
}

// healthHandler serves GET /healthz.
func healthHandler(reg *debate.Registry, m *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:        "ok",
			UptimeSeconds: int64(m.Uptime().Seconds()),
			Participants:  reg.Len(),
			Available:     lo.CountBy(reg.All(), func(p debate.Participant) bool { return p.Available }),
			ActiveStreams: m.ActiveStreams.Load(),
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
