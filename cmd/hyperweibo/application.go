package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hyperweibo/hyperweibo/internal/agreement"
	"github.com/hyperweibo/hyperweibo/internal/cache"
	"github.com/hyperweibo/hyperweibo/internal/console"
	"github.com/hyperweibo/hyperweibo/internal/credentials"
	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/i18n"
	"github.com/hyperweibo/hyperweibo/internal/logging"
	"github.com/hyperweibo/hyperweibo/internal/mockdata"
	"github.com/hyperweibo/hyperweibo/internal/reauth"
	"github.com/hyperweibo/hyperweibo/internal/render"
	"github.com/hyperweibo/hyperweibo/internal/server"
	"github.com/hyperweibo/hyperweibo/internal/viewer"
	"github.com/hyperweibo/hyperweibo/internal/weibo"
)

const (
	defaultLogLevel         = logging.DefaultLevel
	defaultRequestTimeout   = weibo.DefaultRequestTimeout
	defaultBaseURL          = weibo.DefaultBaseURL
	defaultSpecialGroupName = feed.DefaultSpecialFocusGroupName
	environmentFileName     = ".env"
	agreementReservedRows   = 10
	shutdownTimeout         = 5 * time.Second
	prefetchPageInterval    = 1500 * time.Millisecond
	prefetchIntervalSpread  = 500 * time.Millisecond
	prefetchPagesPerBurst   = 5
	prefetchBurstPause      = 10 * time.Second

	errMessageReported          = "reported to the user"
	errMessageAgreementRequired = "license agreement not accepted"
	errMessageCookieNotFound    = "no cookie in curl command"
	errMessageInvalidPage       = "page must be positive"
	errMessageInvalidRefresh    = "refresh interval must not be negative"
	errMessageReadCurl          = "read curl command"
	errMessageLocateAgreement   = "locate agreement marker"
	errMessageCreateLogger      = "create logger"
	errMessageCreateClient      = "create weibo client"
	errMessageCreateRouter      = "create router"
	errMessageListenAndServe    = "listen and serve"

	logMessageStarting       = "hyperweibo starting"
	logMessageConnectFailed  = "session setup failed, continuing with mock data"
	logMessageStartingServer = "starting preview server"
	logMessageServerStopped  = "preview server stopped"
	logMessageViewerStopped  = "viewer stopped"
	logFieldCommand          = "command"
	logFieldMock             = "mock"
	logFieldLanguage         = "language"
	logFieldStyle            = "style"
	logFieldAddress          = "address"
)

var (
	// ErrReported marks errors whose message was already shown on the terminal.
	ErrReported = errors.New(errMessageReported)

	errAgreementRequired = errors.New(errMessageAgreementRequired)
	errCookieNotFound    = errors.New(errMessageCookieNotFound)
	errInvalidPage       = errors.New(errMessageInvalidPage)
	errInvalidRefresh    = errors.New(errMessageInvalidRefresh)
)

// Dependencies are the process-level collaborators of the application. Nil fields receive defaults.
type Dependencies struct {
	Stdin           io.Reader
	Stdout          io.Writer
	LookupEnv       func(string) (string, bool)
	LoadEnvironment func() error
	NewLogger       func(logging.Config) (*zap.Logger, error)
	NewCredentials  func(logger *zap.Logger) weibo.CredentialProvider
	NewMockSource   func() weibo.MockSource
	ListenAndServe  func(ctx context.Context, httpServer *http.Server) error
}

// Options is the validated configuration of one invocation.
type Options struct {
	Browser          credentials.Browser
	Mock             bool
	Cookie           string
	Page             int
	GroupID          string
	Special          bool
	Refresh          time.Duration
	Language         i18n.Language
	Style            i18n.Style
	LogFile          string
	LogLevel         string
	Timeout          time.Duration
	BaseURL          string
	AgreementFile    string
	SpecialGroupName string
	NoColor          bool
}

// Application runs the hyperweibo commands.
type Application struct {
	dependencies Dependencies
	settings     *viper.Viper
	options      Options
	logger       *zap.Logger
	lines        *console.LineSource
	terminal     *render.Terminal
	catalog      i18n.Catalog
}

// NewApplication applies defaults to dependencies.
func NewApplication(dependencies Dependencies) *Application {
	if dependencies.Stdin == nil {
		dependencies.Stdin = os.Stdin
	}
	if dependencies.Stdout == nil {
		dependencies.Stdout = os.Stdout
	}
	if dependencies.LookupEnv == nil {
		dependencies.LookupEnv = os.LookupEnv
	}
	if dependencies.LoadEnvironment == nil {
		dependencies.LoadEnvironment = loadEnvironmentFile
	}
	if dependencies.NewLogger == nil {
		dependencies.NewLogger = logging.New
	}
	if dependencies.NewCredentials == nil {
		dependencies.NewCredentials = func(logger *zap.Logger) weibo.CredentialProvider {
			return credentials.NewSource(credentials.Config{Logger: logger})
		}
	}
	if dependencies.NewMockSource == nil {
		dependencies.NewMockSource = func() weibo.MockSource {
			return mockdata.NewGenerator(mockdata.Config{})
		}
	}
	if dependencies.ListenAndServe == nil {
		dependencies.ListenAndServe = listenUntilCancelled
	}

	settings := viper.New()
	configureEnvironment(settings)
	return &Application{dependencies: dependencies, settings: settings}
}

// Options returns the configuration resolved for the running command.
func (application *Application) Options() Options {
	return application.options
}

// prepare loads .env, the configuration file and the flags, then builds the logger and terminal.
func (application *Application) prepare(command *cobra.Command, _ []string) error {
	if err := application.dependencies.LoadEnvironment(); err != nil {
		return fmt.Errorf("%s: %w", errMessageLoadEnvironmentFiles, err)
	}
	if err := application.readConfigFile(); err != nil {
		return err
	}
	options, err := application.resolveOptions()
	if err != nil {
		return err
	}
	application.options = options

	logger, err := application.dependencies.NewLogger(logging.Config{Path: options.LogFile, Level: options.LogLevel})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageCreateLogger, err)
	}
	application.logger = logger
	cobra.OnFinalize(func() {
		_ = logger.Sync()
	})

	application.catalog = i18n.Lookup(options.Language, options.Style)
	application.lines = console.NewLineSource(application.dependencies.Stdin)
	application.terminal = application.newTerminal()

	logger.Info(logMessageStarting,
		zap.String(logFieldCommand, command.Name()),
		zap.Bool(logFieldMock, options.Mock),
		zap.String(logFieldLanguage, string(options.Language)),
		zap.String(logFieldStyle, string(options.Style)))
	return nil
}

func (application *Application) readConfigFile() error {
	configPath := strings.TrimSpace(application.settings.GetString(flagConfigName))
	if configPath != "" {
		application.settings.SetConfigFile(configPath)
		if err := application.settings.ReadInConfig(); err != nil {
			return fmt.Errorf("%s: %w", errMessageReadConfig, err)
		}
		return nil
	}

	configDirectory, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	application.settings.SetConfigName(configFileBaseName)
	application.settings.SetConfigType(configFileType)
	application.settings.AddConfigPath(filepath.Join(configDirectory, configDirectoryName))
	if err := application.settings.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%s: %w", errMessageReadConfig, err)
	}
	return nil
}

func (application *Application) resolveOptions() (Options, error) {
	settings := application.settings

	browser, err := credentials.ParseBrowser(settings.GetString(flagBrowserName))
	if err != nil {
		return Options{}, err
	}
	language, err := i18n.ParseLanguage(settings.GetString(flagLanguageName))
	if err != nil {
		return Options{}, err
	}
	style, err := i18n.ParseStyle(settings.GetString(flagStyleName))
	if err != nil {
		return Options{}, err
	}
	page := settings.GetInt(flagPageName)
	if page < 1 {
		return Options{}, fmt.Errorf("%w: %d", errInvalidPage, page)
	}
	refreshSeconds := settings.GetInt(flagRefreshName)
	if refreshSeconds < 0 {
		return Options{}, fmt.Errorf("%w: %d", errInvalidRefresh, refreshSeconds)
	}

	return Options{
		Browser:          browser,
		Mock:             settings.GetBool(flagMockName),
		Cookie:           strings.TrimSpace(settings.GetString(flagCookieName)),
		Page:             page,
		GroupID:          strings.TrimSpace(settings.GetString(flagGroupName)),
		Special:          settings.GetBool(flagSpecialName),
		Refresh:          time.Duration(refreshSeconds) * time.Second,
		Language:         i18n.ResolveLanguage(language, application.dependencies.LookupEnv),
		Style:            style,
		LogFile:          settings.GetString(flagLogFileName),
		LogLevel:         settings.GetString(flagLogLevelName),
		Timeout:          settings.GetDuration(flagTimeoutName),
		BaseURL:          settings.GetString(flagBaseURLName),
		AgreementFile:    settings.GetString(flagAgreementFileName),
		SpecialGroupName: settings.GetString(flagSpecialGroupNameName),
		NoColor:          settings.GetBool(flagNoColorName),
	}, nil
}

func (application *Application) newTerminal() *render.Terminal {
	configuration := render.Config{Output: application.dependencies.Stdout, Catalog: application.catalog}
	if file, isFile := application.dependencies.Stdout.(*os.File); isFile {
		configuration.Width = render.TerminalWidth(file)
		configuration.Color = render.IsTerminal(file) && !application.options.NoColor
	}
	return render.NewTerminal(configuration)
}

func (application *Application) agreementGate() (*agreement.Gate, error) {
	path := application.options.AgreementFile
	if path == "" {
		defaultPath, err := agreement.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageLocateAgreement, err)
		}
		path = defaultPath
	}
	pageHeight := 0
	if file, isFile := application.dependencies.Stdout.(*os.File); isFile {
		if height := render.TerminalHeight(file); height > agreementReservedRows {
			pageHeight = height - agreementReservedRows
		}
	}
	return agreement.NewGate(agreement.Config{
		Store:      agreement.NewStore(agreement.StoreConfig{Path: path, Logger: application.logger}),
		Lines:      application.lines,
		Printer:    application.terminal,
		PageHeight: pageHeight,
		Logger:     application.logger,
	}), nil
}

// requireAgreement shows the agreement when it was never accepted and refuses to continue on decline.
func (application *Application) requireAgreement(ctx context.Context, command *cobra.Command) error {
	gate, err := application.agreementGate()
	if err != nil {
		return err
	}
	if gate.Accepted() {
		return nil
	}
	accepted, err := gate.Ensure(ctx, false)
	if err != nil {
		return err
	}
	if !accepted {
		application.terminal.Failure(application.catalog.AgreementRequired)
		application.terminal.Line(fmt.Sprintf(application.catalog.AgreementRunHintFormat, command.Root().Name()))
		return fmt.Errorf("%w: %w", ErrReported, errAgreementRequired)
	}
	return nil
}

// connect builds the API client and establishes a session. Session failures leave the client in mock mode.
func (application *Application) connect(ctx context.Context) (*weibo.Client, error) {
	options := application.options
	client, err := weibo.NewClient(weibo.Config{
		BaseURL:               options.BaseURL,
		RequestTimeout:        options.Timeout,
		UseMock:               options.Mock,
		SpecialFocusGroupName: options.SpecialGroupName,
		Hint: credentials.Hint{
			Browser:         options.Browser,
			CookieString:    options.Cookie,
			UseCookieString: options.Cookie != "",
		},
		Credentials: application.dependencies.NewCredentials(application.logger),
		Reauthenticator: reauth.NewPrompter(reauth.Config{
			Browser: options.Browser,
			Lines:   application.lines,
			Output:  application.dependencies.Stdout,
			Logger:  application.logger,
		}),
		Cache:  cache.New(cache.Config{}),
		Mock:   application.dependencies.NewMockSource(),
		Logger: application.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateClient, err)
	}

	application.terminal.Line(application.catalog.InitializingMessage)
	if !options.Mock && options.Cookie == "" {
		application.terminal.Line(application.catalog.BrowserAuthNotice)
	}
	if err := client.Connect(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		application.logger.Warn(logMessageConnectFailed, zap.Error(err))
	}
	return client, nil
}

func (application *Application) runViewer(command *cobra.Command, _ []string) error {
	ctx := command.Context()
	if err := application.requireAgreement(ctx, command); err != nil {
		return err
	}
	client, err := application.connect(ctx)
	if err != nil {
		return application.reportAbort(err)
	}

	options := application.options
	initial := weibo.View{Kind: weibo.ViewHome, Page: options.Page}
	switch {
	case options.GroupID != "":
		initial = weibo.View{Kind: weibo.ViewGroup, GroupID: options.GroupID, Page: options.Page}
	case options.Special:
		initial = weibo.View{Kind: weibo.ViewSpecialFocus, Page: options.Page}
	}

	timelineViewer, err := viewer.New(viewer.Config{
		Source:          client,
		Display:         application.terminal,
		Lines:           application.lines,
		Catalog:         application.catalog,
		Initial:         initial,
		RefreshInterval: options.Refresh,
		Logger:          application.logger,
	})
	if err != nil {
		return err
	}

	runErr := timelineViewer.Run(ctx)
	application.logger.Info(logMessageViewerStopped, zap.Error(runErr))
	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, viewer.ErrGroupNotFound):
		application.terminal.Failure(fmt.Sprintf(application.catalog.GroupNotFoundFormat, options.GroupID))
		return fmt.Errorf("%w: %w", ErrReported, runErr)
	default:
		return application.reportAbort(runErr)
	}
}

func (application *Application) runAgree(command *cobra.Command, _ []string) error {
	gate, err := application.agreementGate()
	if err != nil {
		return err
	}
	accepted, err := gate.Ensure(command.Context(), application.settings.GetBool(flagForceName))
	if err != nil {
		return application.reportAbort(err)
	}
	if !accepted {
		return fmt.Errorf("%w: %w", ErrReported, errAgreementRequired)
	}
	return nil
}

func (application *Application) runCookie(_ *cobra.Command, arguments []string) error {
	curlCommand := strings.Join(arguments, " ")
	if len(arguments) == 0 {
		contents, err := io.ReadAll(application.dependencies.Stdin)
		if err != nil {
			return fmt.Errorf("%s: %w", errMessageReadCurl, err)
		}
		curlCommand = string(contents)
	}

	cookie, found := credentials.ExtractCurlCookie(curlCommand)
	if !found {
		application.terminal.Failure(application.catalog.CookieNotFoundMessage)
		return fmt.Errorf("%w: %w", ErrReported, errCookieNotFound)
	}
	application.terminal.Success(application.catalog.CookieFoundMessage)
	application.terminal.Line(cookie)
	application.terminal.Line("")
	application.terminal.Line(fmt.Sprintf(application.catalog.CookieUsageFormat, cookie))
	return nil
}

func (application *Application) runGroups(command *cobra.Command, _ []string) error {
	ctx := command.Context()
	if err := application.requireAgreement(ctx, command); err != nil {
		return err
	}
	client, err := application.connect(ctx)
	if err != nil {
		return application.reportAbort(err)
	}
	groups, mock := client.GroupList(ctx)
	if mock {
		application.terminal.Warning(application.catalog.MockModeNotice)
	}
	application.terminal.Groups(groups)
	return nil
}

func (application *Application) runWhoami(command *cobra.Command, _ []string) error {
	ctx := command.Context()
	if err := application.requireAgreement(ctx, command); err != nil {
		return err
	}
	client, err := application.connect(ctx)
	if err != nil {
		return application.reportAbort(err)
	}
	info := client.UserInfo(ctx)
	if client.MockMode() {
		application.terminal.Warning(application.catalog.MockModeNotice)
	}
	application.terminal.UserInfo(info)
	return nil
}

func (application *Application) runServe(command *cobra.Command, _ []string) error {
	ctx := command.Context()
	if err := application.requireAgreement(ctx, command); err != nil {
		return err
	}
	client, err := application.connect(ctx)
	if err != nil {
		return application.reportAbort(err)
	}

	router, err := server.NewRouter(server.RouterConfig{
		Source:   client,
		Language: application.options.Language,
		Catalog:  application.catalog,
		Logger:   application.logger,
		PrefetchPacing: server.PacingConfig{
			PageInterval:   prefetchPageInterval,
			IntervalSpread: prefetchIntervalSpread,
			PagesPerBurst:  prefetchPagesPerBurst,
			BurstPause:     prefetchBurstPause,
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageCreateRouter, err)
	}

	address := net.JoinHostPort(application.settings.GetString(flagHostName), strconv.Itoa(application.settings.GetInt(flagPortName)))
	application.logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))
	application.terminal.Success("http://" + address + "/")

	httpServer := &http.Server{Addr: address, Handler: router, ReadHeaderTimeout: defaultRequestTimeout}
	if err := application.dependencies.ListenAndServe(ctx, httpServer); err != nil {
		return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
	}
	application.logger.Info(logMessageServerStopped)
	return nil
}

// reportAbort shows the stop message for cancellations and the failure message otherwise.
func (application *Application) reportAbort(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || errors.Is(err, reauth.ErrInputClosed) {
		application.terminal.Warning(application.catalog.AbortedMessage)
		return nil
	}
	application.terminal.Failure(fmt.Sprintf(application.catalog.FailedFormat, err))
	return fmt.Errorf("%w: %w", ErrReported, err)
}

// listenUntilCancelled serves until ctx is cancelled, then shuts the server down.
func listenUntilCancelled(ctx context.Context, httpServer *http.Server) error {
	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownContext)
	}
}

// loadEnvironmentFile loads .env from the working directory when it exists.
func loadEnvironmentFile() error {
	if _, err := os.Stat(environmentFileName); err != nil {
		return nil
	}
	return godotenv.Load(environmentFileName)
}
