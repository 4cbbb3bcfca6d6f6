package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// ErrNoCredential is returned when no credential has been saved.
var ErrNoCredential = errors.New("no saved credential")

// Credential holds a saved mount credential.
type Credential struct {
	Token   string    `json:"token"`
	Server  string    `json:"server,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// CredentialPath returns the default path for the credential file.
func CredentialPath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "networkfs", "credential.json")
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "networkfs", "credential.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "networkfs", "credential.json")
}

// SaveCredential writes cred to path with owner-only permissions.
func SaveCredential(path string, cred *Credential) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if cred.SavedAt.IsZero() {
		cred.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadCredential reads a credential file.
func LoadCredential(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, err
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}
	if cred.Token == "" {
		return nil, ErrNoCredential
	}
	return &cred, nil
}

// DeleteCredential removes the credential file. A missing file is not an error.
func DeleteCredential(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
