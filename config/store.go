package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DeviceRecord is the state that outlives a single bootstrap run: the
// identity the device registered under, the token the backend granted,
// and the backend the token was obtained from.
type DeviceRecord struct {
	DeviceSerial string `json:"device_serial"`
	DeviceToken  string `json:"device_token"`
	BackendURL   string `json:"backend_url"`
}

// Store persists the device record as JSON at a fixed path.
type Store struct {
	Path string
	Log  *slog.Logger
}

// Save writes the record atomically (temp file then rename) with
// permissions restricted to the owning account. The containing
// directory is created if needed.
func (s *Store) Save(rec DeviceRecord) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal device record: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("could not write device record: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not replace device record: %w", err)
	}

	s.Log.Info("Saved device record",
		slog.String("path", s.Path),
		slog.String("deviceSerial", rec.DeviceSerial))
	return nil
}

// Load reads the persisted record. Callers should treat any error as
// "no record yet"; the bootstrap flow registers unconditionally either
// way.
func (s *Store) Load() (DeviceRecord, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return DeviceRecord{}, fmt.Errorf("could not read device record: %w", err)
	}

	var rec DeviceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return DeviceRecord{}, fmt.Errorf("could not parse device record: %w", err)
	}
	return rec, nil
}
