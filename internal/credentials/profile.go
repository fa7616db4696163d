package credentials

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	profileCopyPattern   = "hyperweibo-profile-*"
	profileDirectoryMode = 0o700
	profileFileMode      = 0o600
	localAppDataVariable = "LOCALAPPDATA"
	appDataVariable      = "APPDATA"
)

// copyFile copies source into destination, creating parent directories.
func copyFile(sourcePath string, destinationPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	if err := os.MkdirAll(filepath.Dir(destinationPath), profileDirectoryMode); err != nil {
		return err
	}
	destinationFile, err := os.OpenFile(destinationPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, profileFileMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destinationFile, sourceFile); err != nil {
		destinationFile.Close()
		return err
	}
	return destinationFile.Close()
}

// copyIfExists copies source when it exists and reports whether it did.
func copyIfExists(sourcePath string, destinationPath string) (bool, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, copyFile(sourcePath, destinationPath)
}

func homeDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func environmentDirectory(variable string) string {
	return strings.TrimSpace(os.Getenv(variable))
}

func hostMatchesSuffix(host string, domainSuffix string) bool {
	normalizedHost := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), ".")
	normalizedSuffix := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domainSuffix)), ".")
	if normalizedSuffix == "" {
		return false
	}
	return normalizedHost == normalizedSuffix || strings.HasSuffix(normalizedHost, "."+normalizedSuffix)
}
