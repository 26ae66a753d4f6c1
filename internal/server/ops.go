package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// StatusInfo is the body of GET /status
type StatusInfo struct {
	Bucket     string        `json:"bucket"`
	BasePath   string        `json:"base_path"`
	PresignTTL string        `json:"presign_ttl"`
	Reindex    string        `json:"reindex_interval"`
	Uptime     string        `json:"uptime"`
	Memory     *MemoryStatus `json:"memory,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// MemoryStatus holds host and process memory figures
type MemoryStatus struct {
	HostTotal   uint64  `json:"host_total"`
	HostUsed    uint64  `json:"host_used"`
	HostPercent float64 `json:"host_percent"`
	ProcessRSS  uint64  `json:"process_rss"`
}

// setupOpsRoutes sets up the ops listener routes
func (s *Server) setupOpsRoutes() {
	s.ops.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.ops.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.ops.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.ops.HandleFunc("/reindex", s.handleReindex).Methods("POST")
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus reports configuration and memory usage
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := StatusInfo{
		Bucket:     s.config.Storage.Bucket,
		BasePath:   s.config.Server.BasePath,
		PresignTTL: s.config.Storage.PresignTTL().String(),
		Reindex:    s.config.Reindex.Interval.String(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Timestamp:  time.Now(),
	}

	memory, err := s.memoryStatus()
	if err != nil {
		s.logger.Warnf("Failed to collect memory stats: %v", err)
	} else {
		info.Memory = memory
	}

	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) memoryStatus() (*MemoryStatus, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	status := &MemoryStatus{
		HostTotal:   vm.Total,
		HostUsed:    vm.Used,
		HostPercent: vm.UsedPercent,
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return status, nil
	}
	if info, err := proc.MemoryInfo(); err == nil {
		status.ProcessRSS = info.RSS
	}
	return status, nil
}

// handleReindex runs a reindex on demand
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	res, err := s.reindexer.ReindexBucket(r.Context())
	s.metrics.ObserveReindex(packagesOf(res), err)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to reindex bucket", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if err != nil {
		response["details"] = err.Error()
	}

	s.writeJSON(w, status, response)
}
