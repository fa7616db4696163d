package credentials_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"flag"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyperweibo/hyperweibo/internal/credentials"
)

const (
	storeTestProfileName       = "abcd1234.default-release"
	storeTestOlderProfileName  = "zzzz0000.old"
	storeTestCreateCookieTable = "CREATE TABLE moz_cookies (id INTEGER PRIMARY KEY, host TEXT, name TEXT, value TEXT)"
	storeTestInsertCookie      = "INSERT INTO moz_cookies (host, name, value) VALUES (?, ?, ?)"

	storeIntegrationFlagName         = "weibo_integration"
	storeIntegrationFlagDescription  = "enable live browser cookie extraction through chromedp"
	storeIntegrationDisabledMessage  = "browser cookie integration test skipped because the flag is disabled"
	storeIntegrationUnavailableError = "browser cookie integration test skipped because the profile could not be read"
)

var storeIntegrationRunFlag = flag.Bool(storeIntegrationFlagName, false, storeIntegrationFlagDescription)

type storeTestCookie struct {
	host  string
	name  string
	value string
}

func writeFirefoxDatabase(t *testing.T, path string, cookies []storeTestCookie) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("create profile dir: %v", err)
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer database.Close()

	if _, err := database.Exec(storeTestCreateCookieTable); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for _, cookie := range cookies {
		if _, err := database.Exec(storeTestInsertCookie, cookie.host, cookie.name, cookie.value); err != nil {
			t.Fatalf("insert cookie: %v", err)
		}
	}
}

func TestFirefoxStoreReadsNewestProfile(t *testing.T) {
	t.Parallel()

	profilesRoot := t.TempDir()
	olderPath := filepath.Join(profilesRoot, storeTestOlderProfileName, "cookies.sqlite")
	writeFirefoxDatabase(t, olderPath, []storeTestCookie{{host: ".weibo.cn", name: "SUB", value: "stale"}})
	staleTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(olderPath, staleTime, staleTime); err != nil {
		t.Fatalf("age older profile: %v", err)
	}

	writeFirefoxDatabase(t, filepath.Join(profilesRoot, storeTestProfileName, "cookies.sqlite"), []storeTestCookie{
		{host: ".weibo.cn", name: "SUB", value: "fresh"},
		{host: "m.weibo.cn", name: "XSRF-TOKEN", value: "token"},
		{host: ".weibo.com", name: "SUBP", value: "other-domain"},
		{host: ".notweibo.cn", name: "SSOLoginState", value: "lookalike"},
	})

	store := credentials.NewFirefoxStore(credentials.FirefoxConfig{ProfilesRoot: profilesRoot})
	set, err := store.Cookies(context.Background(), credentials.DefaultDomainSuffix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := credentials.Set{"SUB": "fresh", "XSRF-TOKEN": "token"}
	if !reflect.DeepEqual(set, expected) {
		t.Fatalf("expected %v, got %v", expected, set)
	}
}

func TestFirefoxStoreMissingProfile(t *testing.T) {
	t.Parallel()

	store := credentials.NewFirefoxStore(credentials.FirefoxConfig{ProfilesRoot: t.TempDir()})
	if _, err := store.Cookies(context.Background(), credentials.DefaultDomainSuffix); err == nil {
		t.Fatalf("expected error for empty profiles root")
	}
}

type binaryCookieFixture struct {
	domain  string
	name    string
	path    string
	value   string
	expires time.Time
}

var binaryCookieReferenceEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

func encodeBinaryCookie(fixture binaryCookieFixture) []byte {
	const headerSize = 56
	fields := [][]byte{
		append([]byte(fixture.domain), 0),
		append([]byte(fixture.name), 0),
		append([]byte(fixture.path), 0),
		append([]byte(fixture.value), 0),
	}
	offsets := make([]uint32, len(fields))
	cursor := uint32(headerSize)
	for index, encoded := range fields {
		offsets[index] = cursor
		cursor += uint32(len(encoded))
	}

	record := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(record[0:4], cursor)
	binary.LittleEndian.PutUint32(record[16:20], offsets[0])
	binary.LittleEndian.PutUint32(record[20:24], offsets[1])
	binary.LittleEndian.PutUint32(record[24:28], offsets[2])
	binary.LittleEndian.PutUint32(record[28:32], offsets[3])
	expirySeconds := fixture.expires.Sub(binaryCookieReferenceEpoch).Seconds()
	binary.LittleEndian.PutUint64(record[40:48], math.Float64bits(expirySeconds))
	binary.LittleEndian.PutUint64(record[48:56], math.Float64bits(0))
	for _, encoded := range fields {
		record = append(record, encoded...)
	}
	return record
}

func encodeBinaryCookiesFile(fixtures []binaryCookieFixture) []byte {
	records := make([][]byte, 0, len(fixtures))
	for _, fixture := range fixtures {
		records = append(records, encodeBinaryCookie(fixture))
	}

	headerSize := 8 + 4*len(records) + 4
	var page bytes.Buffer
	pageHeader := make([]byte, 8)
	binary.BigEndian.PutUint32(pageHeader[0:4], 0x00000100)
	binary.LittleEndian.PutUint32(pageHeader[4:8], uint32(len(records)))
	page.Write(pageHeader)
	cursor := uint32(headerSize)
	for _, record := range records {
		offset := make([]byte, 4)
		binary.LittleEndian.PutUint32(offset, cursor)
		page.Write(offset)
		cursor += uint32(len(record))
	}
	page.Write([]byte{0, 0, 0, 0})
	for _, record := range records {
		page.Write(record)
	}

	var file bytes.Buffer
	file.WriteString("cook")
	fileHeader := make([]byte, 8)
	binary.BigEndian.PutUint32(fileHeader[0:4], 1)
	binary.BigEndian.PutUint32(fileHeader[4:8], uint32(page.Len()))
	file.Write(fileHeader)
	file.Write(page.Bytes())
	return file.Bytes()
}

func TestParseBinaryCookies(t *testing.T) {
	t.Parallel()

	expires := time.Date(2030, time.January, 2, 3, 4, 5, 0, time.UTC)
	data := encodeBinaryCookiesFile([]binaryCookieFixture{
		{domain: ".weibo.cn", name: "SUB", path: "/", value: "abc", expires: expires},
		{domain: "example.com", name: "other", path: "/x", value: "1", expires: expires},
	})

	cookies, err := credentials.ParseBinaryCookies(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	first := cookies[0]
	if first.Domain != ".weibo.cn" || first.Name != "SUB" || first.Path != "/" || first.Value != "abc" {
		t.Fatalf("unexpected cookie %+v", first)
	}
	if !first.Expires.Equal(expires) {
		t.Fatalf("expected expiry %v, got %v", expires, first.Expires)
	}
}

func TestParseBinaryCookiesRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	valid := encodeBinaryCookiesFile([]binaryCookieFixture{{domain: ".weibo.cn", name: "SUB", path: "/", value: "abc", expires: binaryCookieReferenceEpoch.AddDate(30, 0, 0)}})
	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "wrong magic", data: append([]byte("kooc"), valid[4:]...)},
		{name: "truncated page", data: valid[:len(valid)-10]},
		{name: "page count overflow", data: append([]byte("cook"), 0, 0, 0, 9)},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if _, err := credentials.ParseBinaryCookies(testCase.data); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSafariStoreFiltersDomainAndExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.May, 6, 12, 0, 0, 0, time.UTC)
	data := encodeBinaryCookiesFile([]binaryCookieFixture{
		{domain: ".weibo.cn", name: "SUB", path: "/", value: "live", expires: now.Add(time.Hour)},
		{domain: ".weibo.cn", name: "SUBP", path: "/", value: "expired", expires: now.Add(-time.Hour)},
		{domain: "passport.weibo.cn", name: "SSOLoginState", path: "/", value: "sso", expires: now.Add(time.Hour)},
		{domain: ".example.com", name: "XSRF-TOKEN", path: "/", value: "foreign", expires: now.Add(time.Hour)},
	})
	cookiePath := filepath.Join(t.TempDir(), "Cookies.binarycookies")
	if err := os.WriteFile(cookiePath, data, 0o600); err != nil {
		t.Fatalf("write cookie file: %v", err)
	}

	store := credentials.NewSafariStore(credentials.SafariConfig{
		CookieFiles: []string{filepath.Join(t.TempDir(), "missing.binarycookies"), cookiePath},
		Now:         func() time.Time { return now },
	})
	set, err := store.Cookies(context.Background(), credentials.DefaultDomainSuffix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := credentials.Set{"SUB": "live", "SSOLoginState": "sso"}
	if !reflect.DeepEqual(set, expected) {
		t.Fatalf("expected %v, got %v", expected, set)
	}
}

func TestChromiumStoreWithoutCookieDatabase(t *testing.T) {
	t.Parallel()

	store := credentials.NewChromiumStore(credentials.ChromiumConfig{
		Browser:     credentials.BrowserChrome,
		UserDataDir: t.TempDir(),
		BinaryPath:  "/nonexistent/chrome",
	})
	if _, err := store.Cookies(context.Background(), credentials.DefaultDomainSuffix); err == nil {
		t.Fatalf("expected error when the profile has no cookie database")
	}
}

func TestResolveBrowserBinaryPath(t *testing.T) {
	t.Setenv(credentials.ChromeBinaryEnvironmentVariable, "/opt/chrome/chrome")
	t.Setenv(credentials.EdgeBinaryEnvironmentVariable, "/opt/edge/msedge")

	testCases := []struct {
		name         string
		browser      credentials.Browser
		explicitPath string
		expected     string
	}{
		{name: "explicit path wins", browser: credentials.BrowserChrome, explicitPath: " /custom/chrome ", expected: "/custom/chrome"},
		{name: "chrome environment", browser: credentials.BrowserChrome, expected: "/opt/chrome/chrome"},
		{name: "edge environment", browser: credentials.BrowserEdge, expected: "/opt/edge/msedge"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			actual := credentials.ResolveBrowserBinaryPath(testCase.browser, testCase.explicitPath)
			if actual != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, actual)
			}
		})
	}
}

func TestDefaultProfileLocations(t *testing.T) {
	t.Parallel()

	if location := credentials.DefaultChromiumUserDataDir(credentials.BrowserChrome, "linux"); filepath.Base(location) != "google-chrome" {
		t.Fatalf("unexpected chrome location %s", location)
	}
	if location := credentials.DefaultChromiumUserDataDir(credentials.BrowserEdge, "darwin"); filepath.Base(location) != "Microsoft Edge" {
		t.Fatalf("unexpected edge location %s", location)
	}
	if location := credentials.DefaultFirefoxProfilesRoot("linux"); filepath.Base(location) != "firefox" {
		t.Fatalf("unexpected firefox location %s", location)
	}
	if files := credentials.DefaultSafariCookieFiles(); len(files) != 2 {
		t.Fatalf("expected two safari cookie locations, got %d", len(files))
	}
}

func TestChromiumStoreIntegration(t *testing.T) {
	if !*storeIntegrationRunFlag {
		t.Skip(storeIntegrationDisabledMessage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store := credentials.NewChromiumStore(credentials.ChromiumConfig{Browser: credentials.BrowserChrome})
	set, err := store.Cookies(ctx, credentials.DefaultDomainSuffix)
	if err != nil {
		t.Skipf("%s: %v", storeIntegrationUnavailableError, err)
	}
	t.Logf("read %d cookies: %v", len(set), set.Names())
}
