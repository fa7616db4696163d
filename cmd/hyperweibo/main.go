package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	commandUse              = "hyperweibo"
	commandShortDescription = "Browse the m.weibo.cn timelines from a terminal"
	envPrefix               = "HYPERWEIBO"

	flagBrowserName                = "browser"
	flagBrowserShorthand           = "b"
	flagBrowserDescription         = "Browser whose cookies are used (chrome, firefox, edge, safari)"
	flagMockName                   = "mock"
	flagMockShorthand              = "m"
	flagMockDescription            = "Use synthetic data instead of the network"
	flagCookieName                 = "cookie"
	flagCookieShorthand            = "c"
	flagCookieDescription          = "Session cookie string (k1=v1; k2=v2) used instead of a browser store"
	flagPageName                   = "page"
	flagPageShorthand              = "p"
	flagPageDescription            = "First page to show"
	flagGroupName                  = "group"
	flagGroupShorthand             = "g"
	flagGroupDescription           = "Start on the timeline of this group id"
	flagSpecialName                = "special"
	flagSpecialShorthand           = "s"
	flagSpecialDescription         = "Start on the special focus timeline"
	flagRefreshName                = "refresh"
	flagRefreshShorthand           = "r"
	flagRefreshDescription         = "Auto refresh interval in seconds, 0 disables"
	flagLanguageName               = "language"
	flagLanguageDescription        = "Interface language: en, zh or auto"
	flagStyleName                  = "style"
	flagStyleDescription           = "Output style: weibo or maven"
	flagConfigName                 = "config"
	flagConfigDescription          = "Configuration file (default <user config dir>/hyperweibo/config.yaml)"
	flagLogFileName                = "log-file"
	flagLogFileDescription         = "Log file (default <user cache dir>/hyperweibo/hyperweibo.log)"
	flagLogLevelName               = "log-level"
	flagLogLevelDescription        = "Log level: debug, info, warn or error"
	flagTimeoutName                = "timeout"
	flagTimeoutDescription         = "Timeout of timeline, group and profile requests"
	flagBaseURLName                = "base-url"
	flagBaseURLDescription         = "Base URL of the mobile web endpoint"
	flagAgreementFileName          = "agreement-file"
	flagAgreementFileDescription   = "License acceptance marker (default <user config dir>/hyperweibo/.agreement)"
	flagSpecialGroupNameName       = "special-group-name"
	flagSpecialGroupNameDesc       = "Display name of the special focus group"
	flagNoColorName                = "no-color"
	flagNoColorDescription         = "Disable colors and screen clearing"
	flagForceName                  = "force"
	flagForceDescription           = "Show the agreement even when it was accepted before"
	flagHostName                   = "host"
	flagHostDescription            = "Host interface for the preview server"
	flagPortName                   = "port"
	flagPortDescription            = "Port for the preview server"
	agreeCommandUse                = "agree"
	agreeCommandShortDescription   = "Read and accept the license agreement"
	cookieCommandUse               = "cookie [curl command]"
	cookieCommandShortDescription  = "Extract the session cookie from a copied curl command (stdin without arguments)"
	groupsCommandUse               = "groups"
	groupsCommandShortDescription  = "List the groups of the signed-in account"
	whoamiCommandUse               = "whoami"
	whoamiCommandShortDescription  = "Show the profile of the signed-in account"
	serveCommandUse                = "serve"
	serveCommandShortDescription   = "Serve the timelines as HTML pages on a local port"
	errorOutputFormat              = "%v\n"
	defaultBrowser                 = "chrome"
	defaultPage                    = 1
	defaultLanguage                = "auto"
	defaultStyle                   = "weibo"
	defaultHost                    = "127.0.0.1"
	defaultPort                    = 8080
	envKeySeparator                = "-"
	envKeyReplacement              = "_"
	configFileBaseName             = "config"
	configFileType                 = "yaml"
	configDirectoryName            = "hyperweibo"
	errMessageReadConfig           = "read configuration"
	errMessageLoadEnvironmentFiles = "load .env"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application := NewApplication(Dependencies{})
	if err := NewRootCommand(application).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrReported) {
			fmt.Fprintf(os.Stderr, errorOutputFormat, err)
		}
		cancel()
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree around application.
func NewRootCommand(application *Application) *cobra.Command {
	command := &cobra.Command{
		Use:               commandUse,
		Short:             commandShortDescription,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: application.prepare,
		RunE:              application.runViewer,
	}

	flags := command.PersistentFlags()
	flags.StringP(flagBrowserName, flagBrowserShorthand, defaultBrowser, flagBrowserDescription)
	flags.BoolP(flagMockName, flagMockShorthand, false, flagMockDescription)
	flags.StringP(flagCookieName, flagCookieShorthand, "", flagCookieDescription)
	flags.IntP(flagPageName, flagPageShorthand, defaultPage, flagPageDescription)
	flags.StringP(flagGroupName, flagGroupShorthand, "", flagGroupDescription)
	flags.BoolP(flagSpecialName, flagSpecialShorthand, false, flagSpecialDescription)
	flags.IntP(flagRefreshName, flagRefreshShorthand, 0, flagRefreshDescription)
	flags.String(flagLanguageName, defaultLanguage, flagLanguageDescription)
	flags.String(flagStyleName, defaultStyle, flagStyleDescription)
	flags.String(flagConfigName, "", flagConfigDescription)
	flags.String(flagLogFileName, "", flagLogFileDescription)
	flags.String(flagLogLevelName, defaultLogLevel, flagLogLevelDescription)
	flags.Duration(flagTimeoutName, defaultRequestTimeout, flagTimeoutDescription)
	flags.String(flagBaseURLName, defaultBaseURL, flagBaseURLDescription)
	flags.String(flagAgreementFileName, "", flagAgreementFileDescription)
	flags.String(flagSpecialGroupNameName, defaultSpecialGroupName, flagSpecialGroupNameDesc)
	flags.Bool(flagNoColorName, false, flagNoColorDescription)
	for _, flagName := range []string{
		flagBrowserName, flagMockName, flagCookieName, flagPageName, flagGroupName, flagSpecialName,
		flagRefreshName, flagLanguageName, flagStyleName, flagConfigName, flagLogFileName, flagLogLevelName,
		flagTimeoutName, flagBaseURLName, flagAgreementFileName, flagSpecialGroupNameName, flagNoColorName,
	} {
		bindFlagToViper(application.settings, flags, flagName)
	}

	command.AddCommand(
		newAgreeCommand(application),
		newCookieCommand(application),
		newGroupsCommand(application),
		newWhoamiCommand(application),
		newServeCommand(application),
	)
	return command
}

func newAgreeCommand(application *Application) *cobra.Command {
	command := &cobra.Command{
		Use:   agreeCommandUse,
		Short: agreeCommandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runAgree,
	}
	command.Flags().Bool(flagForceName, false, flagForceDescription)
	bindFlagToViper(application.settings, command.Flags(), flagForceName)
	return command
}

func newCookieCommand(application *Application) *cobra.Command {
	return &cobra.Command{
		Use:   cookieCommandUse,
		Short: cookieCommandShortDescription,
		RunE:  application.runCookie,
	}
}

func newGroupsCommand(application *Application) *cobra.Command {
	return &cobra.Command{
		Use:   groupsCommandUse,
		Short: groupsCommandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runGroups,
	}
}

func newWhoamiCommand(application *Application) *cobra.Command {
	return &cobra.Command{
		Use:   whoamiCommandUse,
		Short: whoamiCommandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runWhoami,
	}
}

func newServeCommand(application *Application) *cobra.Command {
	command := &cobra.Command{
		Use:   serveCommandUse,
		Short: serveCommandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runServe,
	}
	command.Flags().String(flagHostName, defaultHost, flagHostDescription)
	command.Flags().Int(flagPortName, defaultPort, flagPortDescription)
	bindFlagToViper(application.settings, command.Flags(), flagHostName)
	bindFlagToViper(application.settings, command.Flags(), flagPortName)
	return command
}

func bindFlagToViper(settings *viper.Viper, flags *pflag.FlagSet, flagName string) {
	cobra.CheckErr(settings.BindPFlag(flagName, flags.Lookup(flagName)))
}

func configureEnvironment(settings *viper.Viper) {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer(envKeySeparator, envKeyReplacement))
	settings.AutomaticEnv()
}
