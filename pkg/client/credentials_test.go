package client

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestSaveAndLoadCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networkfs", "credential.json")

	if err := SaveCredential(path, &Credential{Token: testToken, Server: "http://localhost:8080"}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
		}
	}

	cred, err := LoadCredential(path)
	if err != nil {
		t.Fatalf("LoadCredential: %v", err)
	}
	if cred.Token != testToken {
		t.Errorf("token = %q", cred.Token)
	}
	if cred.SavedAt.IsZero() {
		t.Error("expected SavedAt to be set")
	}
}

func TestLoadCredential_Missing(t *testing.T) {
	_, err := LoadCredential(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestLoadCredential_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	os.WriteFile(path, []byte(`{"token":""}`), 0600)

	if _, err := LoadCredential(path); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestDeleteCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	SaveCredential(path, &Credential{Token: testToken})

	if err := DeleteCredential(path); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}
	if err := DeleteCredential(path); err != nil {
		t.Fatalf("second DeleteCredential: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("credential file still exists")
	}
}

func TestCredentialPathHonoursXDG(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG paths are not used on windows")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got := CredentialPath(); got != filepath.Join(dir, "networkfs", "credential.json") {
		t.Errorf("CredentialPath = %q", got)
	}
}
