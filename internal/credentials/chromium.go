package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

const (
	// ChromeBinaryEnvironmentVariable overrides the Chrome binary location.
	ChromeBinaryEnvironmentVariable = "CHROME_BIN"
	// EdgeBinaryEnvironmentVariable overrides the Edge binary location.
	EdgeBinaryEnvironmentVariable = "EDGE_BIN"

	defaultChromiumTimeout     = 30 * time.Second
	defaultChromiumProfileName = "Default"
	chromiumLocalStateFile     = "Local State"
	chromiumCookiesFile        = "Cookies"
	chromiumNetworkDirectory   = "Network"
	chromeBinaryPathMacOS      = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	chromeBinaryPathLinux      = "/usr/bin/google-chrome"
	chromeBinaryNameLinux      = "google-chrome"
	chromeBinaryPathChromium   = "/usr/bin/chromium"
	chromeBinaryNameChromium   = "chromium"
	edgeBinaryPathMacOS        = "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"
	edgeBinaryPathLinux        = "/usr/bin/microsoft-edge"
	edgeBinaryNameLinux        = "microsoft-edge"
	edgeBinaryNameWindows      = "msedge"
	operatingSystemMacOS       = "darwin"
	operatingSystemWindows     = "windows"

	errMessageMissingCookieDatabase = "chromium profile has no cookie database"
	errMessageUnknownChromium       = "browser is not chromium based"
	errMessageReadChromiumCookies   = "read cookies through devtools"
)

var (
	errMissingCookieDatabase = errors.New(errMessageMissingCookieDatabase)

	defaultChromeBinaryCandidates = []string{
		chromeBinaryPathMacOS,
		chromeBinaryPathLinux,
		chromeBinaryNameLinux,
		chromeBinaryPathChromium,
		chromeBinaryNameChromium,
	}

	defaultEdgeBinaryCandidates = []string{
		edgeBinaryPathMacOS,
		edgeBinaryPathLinux,
		edgeBinaryNameLinux,
		edgeBinaryNameWindows,
	}
)

// ChromiumConfig configures a ChromiumStore.
type ChromiumConfig struct {
	Browser     Browser
	BinaryPath  string
	UserDataDir string
	ProfileName string
	Timeout     time.Duration
}

// ChromiumStore reads cookies from a Chrome or Edge profile by launching a headless copy of the
// browser against a snapshot of the profile, so the browser decrypts its own cookie database.
type ChromiumStore struct {
	browser     Browser
	binaryPath  string
	userDataDir string
	profileName string
	timeout     time.Duration
}

// NewChromiumStore constructs a ChromiumStore with platform defaults for unset fields.
func NewChromiumStore(configuration ChromiumConfig) *ChromiumStore {
	browser := configuration.Browser
	if browser == "" {
		browser = BrowserChrome
	}
	userDataDir := strings.TrimSpace(configuration.UserDataDir)
	if userDataDir == "" {
		userDataDir = DefaultChromiumUserDataDir(browser, runtime.GOOS)
	}
	profileName := strings.TrimSpace(configuration.ProfileName)
	if profileName == "" {
		profileName = defaultChromiumProfileName
	}
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = defaultChromiumTimeout
	}
	return &ChromiumStore{
		browser:     browser,
		binaryPath:  strings.TrimSpace(configuration.BinaryPath),
		userDataDir: userDataDir,
		profileName: profileName,
		timeout:     timeout,
	}
}

// Cookies returns the cookies whose host ends in domainSuffix.
func (store *ChromiumStore) Cookies(ctx context.Context, domainSuffix string) (Set, error) {
	snapshotDir, err := store.snapshotProfile()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(snapshotDir)

	allocatorOptions := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(ResolveBrowserBinaryPath(store.browser, store.binaryPath)),
		chromedp.UserDataDir(snapshotDir),
		chromedp.Flag("profile-directory", store.profileName),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("use-mock-keychain", false),
		chromedp.Flag("password-store", false),
	)

	timeoutContext, cancelTimeout := context.WithTimeout(ctx, store.timeout)
	defer cancelTimeout()
	allocatorContext, cancelAllocator := chromedp.NewExecAllocator(timeoutContext, allocatorOptions...)
	defer cancelAllocator()
	browserContext, cancelBrowser := chromedp.NewContext(allocatorContext)
	defer cancelBrowser()

	var cookies []*network.Cookie
	runErr := chromedp.Run(browserContext, chromedp.ActionFunc(func(actionContext context.Context) error {
		var getErr error
		cookies, getErr = storage.GetCookies().Do(actionContext)
		return getErr
	}))
	if runErr != nil {
		return nil, fmt.Errorf("%s: %w", errMessageReadChromiumCookies, runErr)
	}

	set := Set{}
	for _, cookie := range cookies {
		if cookie == nil || !hostMatchesSuffix(cookie.Domain, domainSuffix) {
			continue
		}
		set[cookie.Name] = cookie.Value
	}
	return set, nil
}

// snapshotProfile copies Local State and the cookie database into a temporary user data directory.
func (store *ChromiumStore) snapshotProfile() (string, error) {
	profileDir := filepath.Join(store.userDataDir, store.profileName)
	cookieCandidates := []string{
		filepath.Join(profileDir, chromiumNetworkDirectory, chromiumCookiesFile),
		filepath.Join(profileDir, chromiumCookiesFile),
	}

	snapshotDir, err := os.MkdirTemp("", profileCopyPattern)
	if err != nil {
		return "", err
	}

	if _, err := copyIfExists(filepath.Join(store.userDataDir, chromiumLocalStateFile), filepath.Join(snapshotDir, chromiumLocalStateFile)); err != nil {
		os.RemoveAll(snapshotDir)
		return "", err
	}

	copied := false
	for _, candidate := range cookieCandidates {
		relativePath, relErr := filepath.Rel(store.userDataDir, candidate)
		if relErr != nil {
			continue
		}
		exists, copyErr := copyIfExists(candidate, filepath.Join(snapshotDir, relativePath))
		if copyErr != nil {
			os.RemoveAll(snapshotDir)
			return "", copyErr
		}
		if exists {
			copied = true
			break
		}
	}
	if !copied {
		os.RemoveAll(snapshotDir)
		return "", fmt.Errorf("%w: %s", errMissingCookieDatabase, profileDir)
	}
	return snapshotDir, nil
}

// DefaultChromiumUserDataDir returns the user data directory of a Chromium-based browser on goos.
func DefaultChromiumUserDataDir(browser Browser, goos string) string {
	home := homeDirectory()
	switch browser {
	case BrowserEdge:
		switch goos {
		case operatingSystemMacOS:
			return filepath.Join(home, "Library", "Application Support", "Microsoft Edge")
		case operatingSystemWindows:
			return filepath.Join(environmentDirectory(localAppDataVariable), "Microsoft", "Edge", "User Data")
		default:
			return filepath.Join(home, ".config", "microsoft-edge")
		}
	default:
		switch goos {
		case operatingSystemMacOS:
			return filepath.Join(home, "Library", "Application Support", "Google", "Chrome")
		case operatingSystemWindows:
			return filepath.Join(environmentDirectory(localAppDataVariable), "Google", "Chrome", "User Data")
		default:
			return filepath.Join(home, ".config", "google-chrome")
		}
	}
}

// ResolveBrowserBinaryPath determines the executable for a Chromium-based browser. An explicit path wins,
// then the browser's environment variable, then the first well-known candidate found on the system.
func ResolveBrowserBinaryPath(browser Browser, explicitPath string) string {
	if trimmed := strings.TrimSpace(explicitPath); trimmed != "" {
		return trimmed
	}
	environmentVariable, candidates, err := chromiumBinaryLookup(browser)
	if err != nil {
		return chromeBinaryNameLinux
	}
	if environmentValue := strings.TrimSpace(os.Getenv(environmentVariable)); environmentValue != "" {
		return environmentValue
	}
	for _, candidate := range candidates {
		if resolvedPath, lookErr := exec.LookPath(candidate); lookErr == nil {
			return resolvedPath
		}
	}
	return candidates[len(candidates)-1]
}

func chromiumBinaryLookup(browser Browser) (string, []string, error) {
	switch browser {
	case BrowserChrome, "":
		return ChromeBinaryEnvironmentVariable, defaultChromeBinaryCandidates, nil
	case BrowserEdge:
		return EdgeBinaryEnvironmentVariable, defaultEdgeBinaryCandidates, nil
	default:
		return "", nil, fmt.Errorf("%s: %q", errMessageUnknownChromium, browser)
	}
}
