package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultDomainSuffix selects cookies whose host ends in this suffix.
	DefaultDomainSuffix = "weibo.cn"
	// CookieDomain is the domain scope cookies are installed under.
	CookieDomain = ".weibo.cn"
	// XSRFCookieName is the cookie mirrored into the XSRF request header.
	XSRFCookieName = "XSRF-TOKEN"

	cookiePairSeparator   = ";"
	cookieValueSeparator  = "="
	cookieStringJoiner    = "; "
	cookieRootPath        = "/"
	sourceKindExplicit    = "cookie-string"
	errMessageUnavailable = "session credentials unavailable"
	errMessageUnsupported = "unsupported browser"
	errMessageStoreFailed = "read browser cookie store"

	logMessageCredentialsAcquired = "session credentials acquired"
	logMessageCredentialsMissing  = "session credentials missing required cookies"
	logMessageCredentialsComplete = "session credentials carry every required cookie"
	logFieldSource                = "source"
	logFieldCookieNames           = "cookie_names"
	logFieldMissingCookieNames    = "missing_cookie_names"
	logFieldCookieCount           = "cookie_count"
)

var (
	// ErrCredentialUnavailable indicates that no browser store could supply cookies.
	ErrCredentialUnavailable = errors.New(errMessageUnavailable)

	requiredCookieNames = []string{"SUB", "SUBP", "SSOLoginState", XSRFCookieName}
)

// RequiredCookieNames lists the cookies a signed-in session normally carries.
func RequiredCookieNames() []string {
	return append([]string(nil), requiredCookieNames...)
}

// Set maps cookie names to values for the platform's domain.
type Set map[string]string

// ParseCookieString splits a "k1=v1; k2=v2" string. Values may contain "=" and blank items are skipped.
func ParseCookieString(cookieString string) Set {
	set := Set{}
	for _, item := range strings.Split(cookieString, cookiePairSeparator) {
		trimmedItem := strings.TrimSpace(item)
		if trimmedItem == "" {
			continue
		}
		name, value, found := strings.Cut(trimmedItem, cookieValueSeparator)
		if !found {
			continue
		}
		set[name] = value
	}
	return set
}

// XSRFToken returns the XSRF-TOKEN cookie value.
func (set Set) XSRFToken() (string, bool) {
	token, exists := set[XSRFCookieName]
	return token, exists
}

// Names returns the cookie names in sorted order.
func (set Set) Names() []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns the required names absent from the set, in the order given.
func (set Set) Missing(required []string) []string {
	missing := make([]string, 0)
	for _, name := range required {
		if _, exists := set[name]; !exists {
			missing = append(missing, name)
		}
	}
	return missing
}

// HTTPCookies converts the set into cookies scoped to CookieDomain.
func (set Set) HTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(set))
	for _, name := range set.Names() {
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  set[name],
			Domain: CookieDomain,
			Path:   cookieRootPath,
		})
	}
	return cookies
}

// String renders the set as a cookie header value with sorted names.
func (set Set) String() string {
	pairs := make([]string, 0, len(set))
	for _, name := range set.Names() {
		pairs = append(pairs, name+cookieValueSeparator+set[name])
	}
	return strings.Join(pairs, cookieStringJoiner)
}

// Browser names a browser whose cookie store can be read.
type Browser string

const (
	// BrowserChrome reads Google Chrome's profile.
	BrowserChrome Browser = "chrome"
	// BrowserFirefox reads Firefox's profile.
	BrowserFirefox Browser = "firefox"
	// BrowserEdge reads Microsoft Edge's profile.
	BrowserEdge Browser = "edge"
	// BrowserSafari reads Safari's binary cookie file.
	BrowserSafari Browser = "safari"
)

// SupportedBrowsers lists every browser with a cookie store implementation.
func SupportedBrowsers() []Browser {
	return []Browser{BrowserChrome, BrowserFirefox, BrowserEdge, BrowserSafari}
}

// ParseBrowser validates a browser name, ignoring case and surrounding space.
func ParseBrowser(name string) (Browser, error) {
	normalized := Browser(strings.ToLower(strings.TrimSpace(name)))
	for _, browser := range SupportedBrowsers() {
		if browser == normalized {
			return browser, nil
		}
	}
	return "", fmt.Errorf("%s: %q", errMessageUnsupported, name)
}

// Hint selects where credentials come from.
type Hint struct {
	Browser         Browser
	CookieString    string
	UseCookieString bool
}

// BrowserOnly returns a copy of the hint that ignores any explicit cookie string.
func (hint Hint) BrowserOnly() Hint {
	return Hint{Browser: hint.Browser}
}

// Store reads cookies from one browser's local storage.
type Store interface {
	Cookies(ctx context.Context, domainSuffix string) (Set, error)
}

// Config configures a Source.
type Config struct {
	Stores        map[Browser]Store
	DomainSuffix  string
	RequiredNames []string
	Logger        *zap.Logger
}

// Source produces credential sets from an explicit cookie string or a browser store.
type Source struct {
	stores        map[Browser]Store
	domainSuffix  string
	requiredNames []string
	logger        *zap.Logger
}

// NewSource constructs a Source. Without explicit stores the platform defaults are used.
func NewSource(configuration Config) *Source {
	stores := configuration.Stores
	if stores == nil {
		stores = DefaultStores()
	}
	domainSuffix := strings.TrimSpace(configuration.DomainSuffix)
	if domainSuffix == "" {
		domainSuffix = DefaultDomainSuffix
	}
	requiredNames := configuration.RequiredNames
	if len(requiredNames) == 0 {
		requiredNames = RequiredCookieNames()
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		stores:        stores,
		domainSuffix:  domainSuffix,
		requiredNames: requiredNames,
		logger:        logger,
	}
}

// DefaultStores returns a store for every supported browser using the local profile locations.
func DefaultStores() map[Browser]Store {
	return map[Browser]Store{
		BrowserChrome:  NewChromiumStore(ChromiumConfig{Browser: BrowserChrome}),
		BrowserEdge:    NewChromiumStore(ChromiumConfig{Browser: BrowserEdge}),
		BrowserFirefox: NewFirefoxStore(FirefoxConfig{}),
		BrowserSafari:  NewSafariStore(SafariConfig{}),
	}
}

// Acquire returns the credential set selected by hint. An explicit cookie string never touches a browser store.
func (source *Source) Acquire(ctx context.Context, hint Hint) (Set, error) {
	if hint.UseCookieString {
		set := ParseCookieString(hint.CookieString)
		source.logAcquired(sourceKindExplicit, set)
		return set, nil
	}

	store, exists := source.stores[hint.Browser]
	if !exists {
		return nil, fmt.Errorf("%w: %s: %q", ErrCredentialUnavailable, errMessageUnsupported, hint.Browser)
	}
	set, err := store.Cookies(ctx, source.domainSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrCredentialUnavailable, errMessageStoreFailed, hint.Browser, err)
	}
	if set == nil {
		set = Set{}
	}
	source.logAcquired(string(hint.Browser), set)
	return set, nil
}

func (source *Source) logAcquired(sourceKind string, set Set) {
	source.logger.Info(logMessageCredentialsAcquired,
		zap.String(logFieldSource, sourceKind),
		zap.Int(logFieldCookieCount, len(set)),
		zap.Strings(logFieldCookieNames, set.Names()),
	)
	missing := set.Missing(source.requiredNames)
	if len(missing) > 0 {
		source.logger.Warn(logMessageCredentialsMissing,
			zap.String(logFieldSource, sourceKind),
			zap.Strings(logFieldMissingCookieNames, missing),
		)
		return
	}
	source.logger.Info(logMessageCredentialsComplete, zap.String(logFieldSource, sourceKind))
}
