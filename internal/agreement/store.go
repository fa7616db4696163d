package agreement

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	// MarkerFileName is the name of the acceptance marker file.
	MarkerFileName = ".agreement"

	applicationDirectoryName = "hyperweibo"
	markerFilePermissions    = 0o600
	markerDirPermissions     = 0o755

	errMessageCorrupt        = "agreement marker is unreadable"
	errMessageWriteMarker    = "write agreement marker"
	errMessageVerifyMarker   = "agreement marker did not persist"
	errMessageConfigDir      = "locate user config directory"
	logMessageMarkerCorrupt  = "agreement marker corrupt, resetting"
	logMessageMarkerRemoval  = "failed to remove corrupt agreement marker"
	logMessageMarkerAccepted = "agreement marker written"
	logFieldPath             = "path"
)

// ErrLocalStateCorrupt indicates that the marker file existed but could not be decoded. The file is removed.
var ErrLocalStateCorrupt = errors.New(errMessageCorrupt)

var errMarkerNotPersisted = errors.New(errMessageVerifyMarker)

// Record is the persisted acceptance state.
type Record struct {
	Agreed              bool    `json:"agreed"`
	ViewedFullAgreement bool    `json:"viewed_full_agreement"`
	Timestamp           float64 `json:"timestamp"`
}

// Accepted reports whether the agreement was accepted after viewing it.
func (record Record) Accepted() bool {
	return record.Agreed && record.ViewedFullAgreement
}

// StoreConfig customizes a Store.
type StoreConfig struct {
	Path   string
	Now    func() time.Time
	Logger *zap.Logger
}

// Store reads and writes the marker file.
type Store struct {
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// NewStore constructs a Store. An empty path selects MarkerFileName in the working directory.
func NewStore(configuration StoreConfig) *Store {
	path := configuration.Path
	if path == "" {
		path = MarkerFileName
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, now: now, logger: logger}
}

// DefaultPath places the marker in the user's configuration directory.
func DefaultPath() (string, error) {
	directory, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", errMessageConfigDir, err)
	}
	return filepath.Join(directory, applicationDirectoryName, MarkerFileName), nil
}

// Path returns the marker location.
func (store *Store) Path() string {
	return store.path
}

// Load returns the stored record. A missing file is an empty record. A corrupt file is deleted and
// reported as ErrLocalStateCorrupt together with an empty record.
func (store *Store) Load() (Record, error) {
	contents, err := os.ReadFile(store.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, nil
	}
	if err == nil {
		var record Record
		if err = json.Unmarshal(contents, &record); err == nil {
			return record, nil
		}
	}

	store.logger.Warn(logMessageMarkerCorrupt, zap.String(logFieldPath, store.path), zap.Error(err))
	if removeErr := os.Remove(store.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		store.logger.Warn(logMessageMarkerRemoval, zap.String(logFieldPath, store.path), zap.Error(removeErr))
	}
	return Record{}, fmt.Errorf("%w: %v", ErrLocalStateCorrupt, err)
}

// Accepted reports whether a valid acceptance is stored. Corrupt markers count as not accepted.
func (store *Store) Accepted() bool {
	record, err := store.Load()
	return err == nil && record.Accepted()
}

// Save records an acceptance and verifies it can be read back.
func (store *Store) Save() error {
	record := Record{
		Agreed:              true,
		ViewedFullAgreement: true,
		Timestamp:           float64(store.now().UnixNano()) / float64(time.Second),
	}
	contents, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteMarker, err)
	}
	if directory := filepath.Dir(store.path); directory != "." {
		if err := os.MkdirAll(directory, markerDirPermissions); err != nil {
			return fmt.Errorf("%s: %w", errMessageWriteMarker, err)
		}
	}
	if err := os.WriteFile(store.path, contents, markerFilePermissions); err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteMarker, err)
	}

	stored, err := store.Load()
	if err != nil {
		return err
	}
	if !stored.Accepted() {
		return errMarkerNotPersisted
	}
	store.logger.Info(logMessageMarkerAccepted, zap.String(logFieldPath, store.path))
	return nil
}
