package api

import (
	"fmt"
	"net/http"
	"time"
)

// @Title: Create State Backup
// @Route: POST /api/backup
// @Description: Writes a timestamped copy of the state database to the backups directory
// @Response: {"status": "ok", "path": "..."}
func (s *Service) HandleBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backups not configured")
		return
	}

	backupPath, err := s.backups.BackupCurrent(s.maxBackups)
	if err != nil {
		s.logger.Error(fmt.Sprintf("Failed to create state backup: %v", err))
		s.writeError(w, http.StatusInternalServerError, "Failed to save state backup")
		return
	}

	s.logger.Info(fmt.Sprintf("API: Created state backup at: %s", backupPath))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"path":   backupPath,
	})
}

// @Title: Download State Database
// @Route: GET /api/backup/download
// @Description: Downloads a consistent copy of the SQLite state database
// @Response: application/vnd.sqlite3 file download
func (s *Service) HandleBackupDownload(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backups not configured")
		return
	}

	data, err := s.backups.ExportSnapshot()
	if err != nil {
		s.logger.Error(fmt.Sprintf("Failed to export state database: %v", err))
		s.writeError(w, http.StatusInternalServerError, "Failed to export state database")
		return
	}

	filename := fmt.Sprintf("pubreg-%s.db", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Write(data)
	s.logger.Info(fmt.Sprintf("API: Served state download: %s", filename))
}
