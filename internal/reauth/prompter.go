package reauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/hyperweibo/hyperweibo/internal/console"
	"github.com/hyperweibo/hyperweibo/internal/credentials"
)

const (
	// DefaultLoginURL is the page opened for signing in.
	DefaultLoginURL = "https://m.weibo.cn/"
	// DefaultPromptMessage asks the user to confirm the login.
	DefaultPromptMessage = "请在浏览器中登录微博后，按回车键继续..."

	operatingSystemWindows = "windows"
	operatingSystemMacOS   = "darwin"
	windowsShell           = "cmd"
	windowsShellRunFlag    = "/c"
	windowsStartCommand    = "start"
	macOSOpenCommand       = "open"
	macOSOpenAppFlag       = "-a"
	macOSApplicationsDir   = "/Applications/"
	macOSApplicationSuffix = ".app"

	errMessageInputClosed = "terminal input closed before login was confirmed"
	errMessageOpenBrowser = "open login page"

	logMessageOpeningNamedBrowser = "opening named browser for login"
	logMessageNamedBrowserFailed  = "named browser launch failed, falling back to the default opener"
	logMessageOpeningDefault      = "opening default browser for login"
	logMessageDefaultFailed       = "default browser launch failed"
	logMessageAwaitingLogin       = "waiting for the user to confirm login"
	logMessageLoginConfirmed      = "user confirmed login"
	logFieldBrowser               = "browser"
	logFieldCommand               = "command"
	logFieldURL                   = "url"
)

// ErrInputClosed indicates that the terminal closed before the user confirmed the login.
var ErrInputClosed = errors.New(errMessageInputClosed)

// Command is an external process invocation.
type Command struct {
	Name      string
	Arguments []string
}

// String renders the command for logs.
func (command Command) String() string {
	return strings.Join(append([]string{command.Name}, command.Arguments...), " ")
}

type browserApplication struct {
	windowsName string
	macOSApp    string
	linuxBinary string
}

var browserApplications = map[credentials.Browser]browserApplication{
	credentials.BrowserChrome:  {windowsName: "chrome", macOSApp: "Google Chrome", linuxBinary: "google-chrome"},
	credentials.BrowserFirefox: {windowsName: "firefox", macOSApp: "Firefox", linuxBinary: "firefox"},
	credentials.BrowserEdge:    {windowsName: "msedge", macOSApp: "Microsoft Edge"},
	credentials.BrowserSafari:  {macOSApp: "Safari"},
}

// LaunchCommand returns the command that opens loginURL in the named browser on goos. On macOS an
// application bundle must exist; otherwise the browser's Linux binary is used when one is known.
func LaunchCommand(browserName credentials.Browser, goos string, loginURL string, applicationExists func(path string) bool) (Command, bool) {
	application, known := browserApplications[browserName]
	if !known {
		return Command{}, false
	}
	switch goos {
	case operatingSystemWindows:
		if application.windowsName == "" {
			return Command{}, false
		}
		return Command{Name: windowsShell, Arguments: []string{windowsShellRunFlag, windowsStartCommand, application.windowsName, loginURL}}, true
	default:
		if application.macOSApp != "" && applicationExists(macOSApplicationsDir+application.macOSApp+macOSApplicationSuffix) {
			return Command{Name: macOSOpenCommand, Arguments: []string{macOSOpenAppFlag, application.macOSApp, loginURL}}, true
		}
		if goos == operatingSystemMacOS || application.linuxBinary == "" {
			return Command{}, false
		}
		return Command{Name: application.linuxBinary, Arguments: []string{loginURL}}, true
	}
}

// LineReader supplies terminal lines.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Config configures a Prompter.
type Config struct {
	Browser       credentials.Browser
	LoginURL      string
	PromptMessage string
	// Lines is shared with other terminal prompts; defaults to a reader over os.Stdin.
	Lines           LineReader
	Output          io.Writer
	OperatingSystem string
	// StartCommand launches a process without waiting for it.
	StartCommand func(command Command) error
	// OpenDefault opens a URL in the system default browser.
	OpenDefault       func(url string) error
	ApplicationExists func(path string) bool
	Logger            *zap.Logger
}

// Prompter opens a login page and blocks until the user confirms on the terminal.
type Prompter struct {
	browser           credentials.Browser
	loginURL          string
	promptMessage     string
	lines             LineReader
	output            io.Writer
	operatingSystem   string
	startCommand      func(command Command) error
	openDefault       func(url string) error
	applicationExists func(path string) bool
	logger            *zap.Logger

	mutex sync.Mutex
}

// NewPrompter constructs a Prompter with defaults for unset fields.
func NewPrompter(configuration Config) *Prompter {
	prompter := &Prompter{
		browser:           configuration.Browser,
		loginURL:          strings.TrimSpace(configuration.LoginURL),
		promptMessage:     configuration.PromptMessage,
		lines:             configuration.Lines,
		output:            configuration.Output,
		operatingSystem:   configuration.OperatingSystem,
		startCommand:      configuration.StartCommand,
		openDefault:       configuration.OpenDefault,
		applicationExists: configuration.ApplicationExists,
		logger:            configuration.Logger,
	}
	if prompter.lines == nil {
		prompter.lines = console.NewLineSource(os.Stdin)
	}
	if prompter.loginURL == "" {
		prompter.loginURL = DefaultLoginURL
	}
	if prompter.promptMessage == "" {
		prompter.promptMessage = DefaultPromptMessage
	}
	if prompter.output == nil {
		prompter.output = os.Stdout
	}
	if prompter.operatingSystem == "" {
		prompter.operatingSystem = runtime.GOOS
	}
	if prompter.startCommand == nil {
		prompter.startCommand = startDetached
	}
	if prompter.openDefault == nil {
		prompter.openDefault = browser.OpenURL
	}
	if prompter.applicationExists == nil {
		prompter.applicationExists = pathExists
	}
	if prompter.logger == nil {
		prompter.logger = zap.NewNop()
	}
	return prompter
}

// PromptLogin opens the login page and waits for one line of terminal input. Concurrent callers are
// serialized. It returns ErrInputClosed when the input ends and ctx.Err() when ctx is cancelled.
func (prompter *Prompter) PromptLogin(ctx context.Context) error {
	prompter.mutex.Lock()
	defer prompter.mutex.Unlock()

	if err := prompter.openLoginPage(); err != nil {
		prompter.logger.Warn(logMessageDefaultFailed, zap.String(logFieldURL, prompter.loginURL), zap.Error(err))
	}

	fmt.Fprintln(prompter.output, prompter.promptMessage)
	prompter.logger.Info(logMessageAwaitingLogin)

	if _, err := prompter.lines.ReadLine(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrInputClosed, err)
	}
	prompter.logger.Info(logMessageLoginConfirmed)
	return nil
}

func (prompter *Prompter) openLoginPage() error {
	if command, found := LaunchCommand(prompter.browser, prompter.operatingSystem, prompter.loginURL, prompter.applicationExists); found {
		prompter.logger.Info(logMessageOpeningNamedBrowser,
			zap.String(logFieldBrowser, string(prompter.browser)),
			zap.String(logFieldCommand, command.String()),
		)
		startErr := prompter.startCommand(command)
		if startErr == nil {
			return nil
		}
		prompter.logger.Info(logMessageNamedBrowserFailed, zap.Error(startErr))
	}

	prompter.logger.Info(logMessageOpeningDefault, zap.String(logFieldURL, prompter.loginURL))
	if err := prompter.openDefault(prompter.loginURL); err != nil {
		return fmt.Errorf("%s: %w", errMessageOpenBrowser, err)
	}
	return nil
}

func startDetached(command Command) error {
	process := exec.Command(command.Name, command.Arguments...)
	if err := process.Start(); err != nil {
		return err
	}
	go func() {
		_ = process.Wait()
	}()
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
