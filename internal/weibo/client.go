package weibo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dario.cat/mergo"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperweibo/hyperweibo/internal/cache"
	"github.com/hyperweibo/hyperweibo/internal/credentials"
	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/mockdata"
)

const (
	// DefaultBaseURL is the mobile web endpoint.
	DefaultBaseURL = "https://m.weibo.cn"
	// DefaultUserAgent identifies a desktop Chrome build on macOS.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	// DefaultRequestTimeout bounds timeline, group and profile requests.
	DefaultRequestTimeout = defaultHTTPTimeout
	// DefaultProbeTimeout bounds the session liveness probe.
	DefaultProbeTimeout = 5 * time.Second

	maxReauthRetries = 1

	userAgentHeaderName      = "User-Agent"
	acceptHeaderName         = "Accept"
	acceptHeaderValue        = "application/json, text/plain, */*"
	requestedWithHeaderName  = "X-Requested-With"
	requestedWithHeaderValue = "XMLHttpRequest"
	refererHeaderName        = "Referer"
	fetchSiteHeaderName      = "Sec-Fetch-Site"
	fetchSiteHeaderValue     = "same-origin"
	fetchModeHeaderName      = "Sec-Fetch-Mode"
	fetchModeHeaderValue     = "cors"
	fetchDestHeaderName      = "Sec-Fetch-Dest"
	fetchDestHeaderValue     = "empty"
	xsrfHeaderName           = "X-XSRF-TOKEN"
	configListPath           = "/api/config/list"
	okValueSuccess           = 1

	errMessageSessionInvalid  = "session is not signed in"
	errMessageTransport       = "request to the platform failed"
	errMessageUnexpectedCode  = "unexpected status code"
	errMessageParseBaseURL    = "parse base url"
	errMessageApplyDefaults   = "apply client defaults"
	errMessageCreateJar       = "create cookie jar"
	errMessageNoReauth        = "no reauthentication prompt configured"
	errMessageNoCredentials   = "no credential provider configured"
	errMessageInstallSession  = "install session cookies"
	errMessageProbeAfterLogin = "session still invalid after login"

	logMessageCookieStringInstalled = "explicit cookie string installed without probing"
	logMessageBrowserSessionValid   = "browser session verified"
	logMessageBrowserSessionInvalid = "browser session could not be verified"
	logMessageReauthStarting        = "starting interactive reauthentication"
	logMessageReauthFailed          = "interactive reauthentication failed"
	logMessageSwitchingToMock       = "switching to mock data for the rest of the session"
	logMessageProbeFailed           = "session probe failed"
	logMessageProbeRejected         = "session probe rejected"
	logFieldAttempt                 = "attempt"
	logFieldStatusCode              = "status_code"
	logFieldOK                      = "ok"
	logFieldBrowser                 = "browser"
	logFieldCookieCount             = "cookie_count"
)

var (
	// ErrSessionInvalid indicates that the platform rejected the current credentials.
	ErrSessionInvalid = errors.New(errMessageSessionInvalid)
	// ErrTransport indicates a network failure or an unexpected HTTP status.
	ErrTransport = errors.New(errMessageTransport)

	errReauthUnavailable     = errors.New(errMessageNoReauth)
	errCredentialsUnassigned = errors.New(errMessageNoCredentials)
)

// CredentialProvider supplies session cookies.
type CredentialProvider interface {
	Acquire(ctx context.Context, hint credentials.Hint) (credentials.Set, error)
}

// Reauthenticator asks the user to sign in again.
type Reauthenticator interface {
	PromptLogin(ctx context.Context) error
}

// MockSource produces synthetic data when real data is unavailable.
type MockSource interface {
	Records(count int) []feed.TimelineRecord
	User() feed.UserInfo
	Groups() []feed.Group
}

// Config customizes a Client.
type Config struct {
	BaseURL               string
	HTTPClient            *http.Client
	RequestTimeout        time.Duration
	ProbeTimeout          time.Duration
	UserAgent             string
	UseMock               bool
	SpecialFocusGroupName string
	Hint                  credentials.Hint
	Credentials           CredentialProvider
	Reauthenticator       Reauthenticator
	Cache                 *cache.Store
	Mock                  MockSource
	Logger                *zap.Logger
}

func defaultConfig() Config {
	return Config{
		BaseURL:               DefaultBaseURL,
		RequestTimeout:        DefaultRequestTimeout,
		ProbeTimeout:          DefaultProbeTimeout,
		UserAgent:             DefaultUserAgent,
		SpecialFocusGroupName: feed.DefaultSpecialFocusGroupName,
		Hint:                  credentials.Hint{Browser: credentials.BrowserChrome},
	}
}

// Client talks to the mobile web endpoint. Every fetch degrades to mock data instead of failing.
type Client struct {
	http             *resty.Client
	baseURL          *url.URL
	jar              *sessionJar
	requestTimeout   time.Duration
	probeTimeout     time.Duration
	specialFocusName string
	hint             credentials.Hint
	credentials      CredentialProvider
	reauthenticator  Reauthenticator
	cache            *cache.Store
	mock             MockSource
	logger           *zap.Logger

	useMock      atomic.Bool
	sessionMutex sync.RWMutex
	xsrfToken    string
	reauthMutex  sync.Mutex
	flightGroup  singleflight.Group
}

// NewClient constructs a Client. It does not contact the network; call Connect to load credentials.
func NewClient(configuration Config) (*Client, error) {
	if err := mergo.Merge(&configuration, defaultConfig()); err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageApplyDefaults, err)
	}
	if configuration.RequestTimeout < 0 {
		configuration.RequestTimeout = DefaultRequestTimeout
	}
	if configuration.ProbeTimeout < 0 {
		configuration.ProbeTimeout = DefaultProbeTimeout
	}

	parsedBaseURL, err := url.Parse(strings.TrimRight(configuration.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageParseBaseURL, err)
	}

	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient()
	} else {
		clonedClient := *httpClient
		if clonedClient.Transport == nil {
			clonedClient.Transport = defaultTransport()
		}
		httpClient = &clonedClient
	}

	jar, err := newSessionJar()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateJar, err)
	}

	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := configuration.Cache
	if store == nil {
		store = cache.New(cache.Config{})
	}
	mockSource := configuration.Mock
	if mockSource == nil {
		mockSource = mockdata.NewGenerator(mockdata.Config{})
	}

	restyClient := resty.NewWithClient(httpClient).
		SetBaseURL(parsedBaseURL.String()).
		SetCookieJar(jar).
		SetLogger(logger.Sugar()).
		SetHeaders(map[string]string{
			userAgentHeaderName:     configuration.UserAgent,
			acceptHeaderName:        acceptHeaderValue,
			requestedWithHeaderName: requestedWithHeaderValue,
			refererHeaderName:       parsedBaseURL.String() + "/",
			fetchSiteHeaderName:     fetchSiteHeaderValue,
			fetchModeHeaderName:     fetchModeHeaderValue,
			fetchDestHeaderName:     fetchDestHeaderValue,
		})

	client := &Client{
		http:             restyClient,
		baseURL:          parsedBaseURL,
		jar:              jar,
		requestTimeout:   configuration.RequestTimeout,
		probeTimeout:     configuration.ProbeTimeout,
		specialFocusName: configuration.SpecialFocusGroupName,
		hint:             configuration.Hint,
		credentials:      configuration.Credentials,
		reauthenticator:  configuration.Reauthenticator,
		cache:            store,
		mock:             mockSource,
		logger:           logger,
	}
	client.useMock.Store(configuration.UseMock)
	return client, nil
}

// MockMode reports whether the client serves synthetic data.
func (client *Client) MockMode() bool {
	return client.useMock.Load()
}

// SpecialFocusGroupName returns the display name used to find the special focus group.
func (client *Client) SpecialFocusGroupName() string {
	return client.specialFocusName
}

// ClearCache drops every cached value.
func (client *Client) ClearCache() {
	client.cache.Clear()
}

// Connect loads credentials. An explicit cookie string is installed without probing. Browser cookies are
// probed and, when rejected, the user is asked to sign in again at most maxReauthRetries times. When no
// valid session results the client switches to mock data and the cause is returned for logging.
func (client *Client) Connect(ctx context.Context) error {
	if client.MockMode() {
		return nil
	}
	if client.credentials == nil {
		client.degrade(errCredentialsUnassigned)
		return errCredentialsUnassigned
	}

	set, err := client.credentials.Acquire(ctx, client.hint)
	if err == nil {
		err = client.installCredentials(set)
	}
	if err == nil && client.hint.UseCookieString {
		client.logger.Info(logMessageCookieStringInstalled, zap.Int(logFieldCookieCount, len(set)))
		return nil
	}
	if err == nil {
		if client.Probe(ctx) {
			client.logger.Info(logMessageBrowserSessionValid, zap.String(logFieldBrowser, string(client.hint.Browser)))
			return nil
		}
		err = ErrSessionInvalid
	}
	client.logger.Warn(logMessageBrowserSessionInvalid, zap.String(logFieldBrowser, string(client.hint.Browser)), zap.Error(err))

	for attempt := 1; attempt <= maxReauthRetries; attempt++ {
		reauthErr := client.reauthenticate(ctx, attempt)
		if reauthErr == nil {
			return nil
		}
		err = reauthErr
	}
	client.degrade(err)
	return err
}

// Probe reports whether the current credentials are accepted. It never returns an error; failures are logged.
func (client *Client) Probe(ctx context.Context) bool {
	response, err := client.get(ctx, configListPath, nil, client.probeTimeout)
	if err != nil {
		client.logger.Warn(logMessageProbeFailed, zap.Error(err))
		return false
	}

	var envelope struct {
		OK *int `json:"ok"`
	}
	if decodeErr := json.Unmarshal(response.Body(), &envelope); decodeErr != nil {
		client.logger.Warn(logMessageProbeRejected, zap.Int(logFieldStatusCode, response.StatusCode()), zap.Error(decodeErr))
		return false
	}
	if envelope.OK == nil || *envelope.OK != okValueSuccess {
		client.logger.Warn(logMessageProbeRejected, zap.Int(logFieldStatusCode, response.StatusCode()), zap.Any(logFieldOK, envelope.OK))
		return false
	}
	return true
}

// reauthenticate prompts for a login, reloads browser cookies and probes them. Calls are serialized.
func (client *Client) reauthenticate(ctx context.Context, attempt int) error {
	client.reauthMutex.Lock()
	defer client.reauthMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if client.reauthenticator == nil {
		return errReauthUnavailable
	}
	if client.credentials == nil {
		return errCredentialsUnassigned
	}

	client.logger.Info(logMessageReauthStarting, zap.Int(logFieldAttempt, attempt))
	if err := client.reauthenticator.PromptLogin(ctx); err != nil {
		client.logger.Warn(logMessageReauthFailed, zap.Int(logFieldAttempt, attempt), zap.Error(err))
		return err
	}
	set, err := client.credentials.Acquire(ctx, client.hint.BrowserOnly())
	if err != nil {
		client.logger.Warn(logMessageReauthFailed, zap.Int(logFieldAttempt, attempt), zap.Error(err))
		return err
	}
	if err := client.installCredentials(set); err != nil {
		return fmt.Errorf("%s: %w", errMessageInstallSession, err)
	}
	if !client.Probe(ctx) {
		err := fmt.Errorf("%s: %w", errMessageProbeAfterLogin, ErrSessionInvalid)
		client.logger.Warn(logMessageReauthFailed, zap.Int(logFieldAttempt, attempt), zap.Error(err))
		return err
	}
	return nil
}

func (client *Client) installCredentials(set credentials.Set) error {
	if err := client.jar.replace(client.baseURL, set); err != nil {
		return fmt.Errorf("%s: %w", errMessageInstallSession, err)
	}
	token, _ := set.XSRFToken()

	client.sessionMutex.Lock()
	defer client.sessionMutex.Unlock()
	client.xsrfToken = token
	return nil
}

func (client *Client) currentXSRFToken() string {
	client.sessionMutex.RLock()
	defer client.sessionMutex.RUnlock()
	return client.xsrfToken
}

func (client *Client) degrade(reason error) {
	if client.useMock.CompareAndSwap(false, true) {
		client.logger.Warn(logMessageSwitchingToMock, zap.Error(reason))
	}
}

func (client *Client) get(ctx context.Context, path string, params map[string]string, timeout time.Duration) (*resty.Response, error) {
	requestContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request := client.http.R().SetContext(requestContext)
	if len(params) > 0 {
		request.SetQueryParams(params)
	}
	if token := client.currentXSRFToken(); token != "" {
		request.SetHeader(xsrfHeaderName, token)
	}

	response, err := request.Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	statusCode := response.StatusCode()
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %d", ErrSessionInvalid, errMessageUnexpectedCode, statusCode)
	case statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("%w: %s %d", ErrTransport, errMessageUnexpectedCode, statusCode)
	}
	return response, nil
}
