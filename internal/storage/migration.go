package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/makt28/downwatch/internal/model"
)

// MigrateMonitorsFile checks the version of a monitors file and upgrades it in
// place if needed.
//
// Version 0 is a bare JSON array of registrations (the export format of the
// first release); each entry becomes an ACTIVE monitor with a fresh id.
func MigrateMonitorsFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to migrate
		}
		return err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return migrateMonitorsV0(filePath, trimmed)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("parse monitors for migration: %w", err)
	}

	version := 0
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			version = 0
		}
	}
	if version == CurrentFileVersion {
		return nil
	}
	if version > CurrentFileVersion {
		return fmt.Errorf("monitors file version %d is newer than supported %d", version, CurrentFileVersion)
	}

	slog.Info("migrating monitors file", "from_version", version, "to_version", CurrentFileVersion)

	var fd FileData
	if err := json.Unmarshal(trimmed, &fd); err != nil {
		return fmt.Errorf("parse monitors for migration: %w", err)
	}
	fd.Version = CurrentFileVersion
	if fd.Monitors == nil {
		fd.Monitors = make(map[string]*MonitorRecord)
	}
	return atomicWriteJSON(filePath, fd)
}

func migrateMonitorsV0(filePath string, data []byte) error {
	var legacy []struct {
		model.Registration
		Logs []model.DowntimeInterval `json:"logs"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parse legacy monitors: %w", err)
	}

	slog.Info("migrating legacy monitors list", "count", len(legacy), "to_version", CurrentFileVersion)

	fd := FileData{
		Version:  CurrentFileVersion,
		Monitors: make(map[string]*MonitorRecord, len(legacy)),
	}
	now := time.Now().UTC()
	for i, l := range legacy {
		iv, err := model.ParseInterval(l.Interval)
		if err != nil {
			slog.Warn("skipping legacy monitor with unsupported interval", "index", i, "url", l.URL, "interval", l.Interval)
			continue
		}
		id := uuid.NewString()
		logs := l.Logs
		if logs == nil {
			logs = []model.DowntimeInterval{}
		}
		fd.Monitors[id] = &MonitorRecord{
			Monitor: model.Monitor{
				ID:          id,
				URL:         l.URL,
				Name:        l.Name,
				Email:       l.Email,
				Phone:       l.Phone,
				CountryCode: l.CountryCode,
				Interval:    iv,
				State:       model.StateActive,
				CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
			},
			Logs: logs,
		}
	}
	return atomicWriteJSON(filePath, fd)
}
