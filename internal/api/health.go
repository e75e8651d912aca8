package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"

	"pubreg.chain/pubreg/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns node version, build and platform details
// @Response: {"version": "...", "status": "ok", "hostname": "...", "height": "..."}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	response := map[string]string{
		"version":  types.Version,
		"status":   "ok",
		"hostname": hostname,
		"go_ver":   runtime.Version(),
		"os_arch":  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if types.BuildTime != "" {
		response["build_time"] = types.BuildTime
	}
	if reg, err := s.reader.Registry(); err == nil {
		response["height"] = strconv.FormatInt(reg.Height, 10)
	}

	s.writeJSON(w, http.StatusOK, response)
}

// @Title: Get Activity Log
// @Route: GET /api/log?n=50
// @Description: Returns recent node activity, newest first
// @Response: [{"timestamp": "...", "text": "...", "level": "info"}]
func (s *Service) HandleLog(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	s.writeJSON(w, http.StatusOK, s.logger.GetRecent(n))
}
