package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName             = "sqlite"
	firefoxCookiesFile           = "cookies.sqlite"
	firefoxWriteAheadLogSuffix   = "-wal"
	firefoxCookieQuery           = "SELECT host, name, value FROM moz_cookies WHERE host LIKE ? ORDER BY LENGTH(host), name"
	firefoxHostPatternPrefix     = "%"
	errMessageMissingFirefoxData = "firefox profile has no cookie database"
	errMessageQueryFirefox       = "query firefox cookie database"
)

var errMissingFirefoxDatabase = errors.New(errMessageMissingFirefoxData)

// FirefoxConfig configures a FirefoxStore.
type FirefoxConfig struct {
	// ProfilesRoot is the directory holding Firefox profile directories.
	ProfilesRoot string
}

// FirefoxStore reads cookies from the most recently used Firefox profile.
type FirefoxStore struct {
	profilesRoot string
}

// NewFirefoxStore constructs a FirefoxStore.
func NewFirefoxStore(configuration FirefoxConfig) *FirefoxStore {
	profilesRoot := strings.TrimSpace(configuration.ProfilesRoot)
	if profilesRoot == "" {
		profilesRoot = DefaultFirefoxProfilesRoot(runtime.GOOS)
	}
	return &FirefoxStore{profilesRoot: profilesRoot}
}

// Cookies returns the cookies whose host ends in domainSuffix. The database is copied first because a
// running Firefox keeps it locked.
func (store *FirefoxStore) Cookies(ctx context.Context, domainSuffix string) (Set, error) {
	databasePath, err := store.newestCookieDatabase()
	if err != nil {
		return nil, err
	}

	snapshotDir, err := os.MkdirTemp("", profileCopyPattern)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(snapshotDir)

	snapshotPath := filepath.Join(snapshotDir, firefoxCookiesFile)
	if err := copyFile(databasePath, snapshotPath); err != nil {
		return nil, err
	}
	if _, err := copyIfExists(databasePath+firefoxWriteAheadLogSuffix, snapshotPath+firefoxWriteAheadLogSuffix); err != nil {
		return nil, err
	}

	database, err := sql.Open(sqliteDriverName, snapshotPath)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	normalizedSuffix := strings.TrimPrefix(strings.TrimSpace(domainSuffix), ".")
	rows, err := database.QueryContext(ctx, firefoxCookieQuery, firefoxHostPatternPrefix+normalizedSuffix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageQueryFirefox, err)
	}
	defer rows.Close()

	set := Set{}
	for rows.Next() {
		var host, name, value string
		if err := rows.Scan(&host, &name, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageQueryFirefox, err)
		}
		if !hostMatchesSuffix(host, normalizedSuffix) {
			continue
		}
		set[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageQueryFirefox, err)
	}
	return set, nil
}

func (store *FirefoxStore) newestCookieDatabase() (string, error) {
	candidates, err := filepath.Glob(filepath.Join(store.profilesRoot, "*", firefoxCookiesFile))
	if err != nil {
		return "", err
	}

	var (
		newestPath    string
		newestModTime int64
	)
	for _, candidate := range candidates {
		info, statErr := os.Stat(candidate)
		if statErr != nil {
			continue
		}
		if modTime := info.ModTime().UnixNano(); newestPath == "" || modTime > newestModTime {
			newestPath = candidate
			newestModTime = modTime
		}
	}
	if newestPath == "" {
		return "", fmt.Errorf("%w: %s", errMissingFirefoxDatabase, store.profilesRoot)
	}
	return newestPath, nil
}

// DefaultFirefoxProfilesRoot returns the directory holding Firefox profiles on goos.
func DefaultFirefoxProfilesRoot(goos string) string {
	switch goos {
	case operatingSystemMacOS:
		return filepath.Join(homeDirectory(), "Library", "Application Support", "Firefox", "Profiles")
	case operatingSystemWindows:
		return filepath.Join(environmentDirectory(appDataVariable), "Mozilla", "Firefox", "Profiles")
	default:
		return filepath.Join(homeDirectory(), ".mozilla", "firefox")
	}
}
