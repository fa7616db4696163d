package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/i18n"
	"github.com/hyperweibo/hyperweibo/internal/weibo"
)

const (
	choiceRefresh     = "1"
	choiceToggle      = "2"
	choiceChooseGroup = "3"
	choiceNext        = "n"
	choicePrevious    = "p"
	choiceGoto        = "g"
	choiceQuit        = "q"

	errMessageMissingSource  = "viewer requires a timeline source"
	errMessageMissingDisplay = "viewer requires a display"
	errMessageMissingLines   = "viewer requires a line reader"
	errMessageGroupNotFound  = "group not found"
	errMessageReadChoice     = "read menu choice"

	logMessageViewChanged  = "view changed"
	logMessageRefresh      = "refreshing view"
	logMessageInputClosed  = "input closed, leaving viewer"
	logFieldKind           = "kind"
	logFieldGroupID        = "group_id"
	logFieldPage           = "page"
	logFieldTrigger        = "trigger"
	refreshTriggerManual   = "manual"
	refreshTriggerSchedule = "schedule"
)

var (
	// ErrGroupNotFound indicates that the requested starting group is not in the group list.
	ErrGroupNotFound = errors.New(errMessageGroupNotFound)

	errMissingSource  = errors.New(errMessageMissingSource)
	errMissingDisplay = errors.New(errMessageMissingDisplay)
	errMissingLines   = errors.New(errMessageMissingLines)
)

// Source provides timeline data. *weibo.Client satisfies it.
type Source interface {
	// Fetch reports whether the returned records are mock data.
	Fetch(ctx context.Context, view weibo.View) ([]feed.TimelineRecord, bool)
	Invalidate(view weibo.View)
	Groups(ctx context.Context) []feed.Group
	UserInfo(ctx context.Context) feed.UserInfo
}

// Display renders the view. *render.Terminal satisfies it.
type Display interface {
	Clear()
	Heading(text string)
	Line(text string)
	Prompt(text string)
	Warning(text string)
	Failure(text string)
	Timeline(title string, records []feed.TimelineRecord)
	Groups(groups []feed.Group)
	UserInfo(info feed.UserInfo)
}

// LineReader supplies menu answers.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Config customizes a Viewer.
type Config struct {
	Source  Source
	Display Display
	Lines   LineReader
	Catalog i18n.Catalog
	// Initial is the first view shown; pages below one start at one.
	Initial weibo.View
	// RefreshInterval enables auto refresh when positive.
	RefreshInterval time.Duration
	// RefreshTicks replaces the cron schedule when set.
	RefreshTicks <-chan time.Time
	Logger       *zap.Logger
}

// Viewer runs the interactive menu loop.
type Viewer struct {
	source          Source
	display         Display
	lines           LineReader
	catalog         i18n.Catalog
	view            weibo.View
	refreshInterval time.Duration
	refreshTicks    <-chan time.Time
	logger          *zap.Logger
	groups          []feed.Group
	user            feed.UserInfo
	notices         []string
}

// New validates configuration and constructs a Viewer.
func New(configuration Config) (*Viewer, error) {
	if configuration.Source == nil {
		return nil, errMissingSource
	}
	if configuration.Display == nil {
		return nil, errMissingDisplay
	}
	if configuration.Lines == nil {
		return nil, errMissingLines
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	view := configuration.Initial
	if view.Page < 1 {
		view.Page = 1
	}
	return &Viewer{
		source:          configuration.Source,
		display:         configuration.Display,
		lines:           configuration.Lines,
		catalog:         configuration.Catalog,
		view:            view,
		refreshInterval: configuration.RefreshInterval,
		refreshTicks:    configuration.RefreshTicks,
		logger:          logger,
	}, nil
}

// View returns the view currently shown.
func (viewer *Viewer) View() weibo.View {
	return viewer.view
}

// Run shows timeline pages and handles menu choices until the user quits, the input closes or ctx
// is cancelled. A starting group missing from the group list fails with ErrGroupNotFound.
func (viewer *Viewer) Run(ctx context.Context) error {
	viewer.warmUp(ctx)

	if viewer.view.Kind == weibo.ViewGroup {
		if _, found := feed.FindGroupByID(viewer.groups, viewer.view.GroupID); !found {
			return fmt.Errorf("%w: %s", ErrGroupNotFound, viewer.view.GroupID)
		}
	}

	ticks := viewer.refreshTicks
	if ticks == nil && viewer.refreshInterval > 0 {
		schedule, err := newRefreshSchedule(viewer.refreshInterval, viewer.logger)
		if err != nil {
			return err
		}
		defer schedule.Stop()
		ticks = schedule.Ticks()
	}

	for {
		viewer.show(ctx)

		choice, scheduled, err := viewer.readChoice(ctx, ticks)
		if err != nil {
			if errors.Is(err, io.EOF) {
				viewer.logger.Info(logMessageInputClosed)
				return nil
			}
			return err
		}
		if scheduled {
			viewer.refresh(refreshTriggerSchedule)
			continue
		}
		quit, err := viewer.handle(ctx, choice)
		if err != nil {
			if errors.Is(err, io.EOF) {
				viewer.logger.Info(logMessageInputClosed)
				return nil
			}
			return err
		}
		if quit {
			return nil
		}
	}
}

// warmUp loads the group list and the profile in parallel. Neither call fails; the source substitutes
// mock data.
func (viewer *Viewer) warmUp(ctx context.Context) {
	var (
		group  errgroup.Group
		groups []feed.Group
		user   feed.UserInfo
	)
	group.Go(func() error {
		groups = viewer.source.Groups(ctx)
		return nil
	})
	group.Go(func() error {
		user = viewer.source.UserInfo(ctx)
		return nil
	})
	_ = group.Wait()
	viewer.groups = groups
	viewer.user = user
}

func (viewer *Viewer) show(ctx context.Context) {
	name := viewer.viewName(viewer.view)
	viewer.display.Clear()
	viewer.display.Line(fmt.Sprintf(viewer.catalog.LoadingFormat, name, viewer.view.Page))
	records, mock := viewer.source.Fetch(ctx, viewer.view)

	viewer.display.Clear()
	viewer.display.Heading(viewer.catalog.ApplicationTitle)
	viewer.display.UserInfo(viewer.user)
	if mock {
		viewer.display.Warning(viewer.catalog.MockModeNotice)
	}
	viewer.display.Line("")
	viewer.display.Timeline(fmt.Sprintf(viewer.catalog.PageTitleFormat, name, viewer.view.Page), records)

	for _, notice := range viewer.notices {
		viewer.display.Failure(notice)
	}
	viewer.notices = nil

	viewer.display.Heading(viewer.catalog.MenuTitle)
	viewer.display.Line(viewer.catalog.MenuRefresh)
	viewer.display.Line(fmt.Sprintf(viewer.catalog.MenuSwitchToFormat, viewer.toggleTargetName()))
	viewer.display.Line(viewer.catalog.MenuChooseGroup)
	viewer.display.Line(viewer.catalog.MenuNextPage)
	viewer.display.Line(viewer.catalog.MenuPreviousPage)
	viewer.display.Line(viewer.catalog.MenuGotoPage)
	viewer.display.Line(viewer.catalog.MenuQuit)
	if viewer.refreshInterval > 0 {
		viewer.display.Line(fmt.Sprintf(viewer.catalog.AutoRefreshFormat, int(viewer.refreshInterval/time.Second)))
	}
	viewer.display.Prompt(viewer.catalog.ChoicePrompt)
}

// readChoice waits for a menu line. A refresh tick arriving first interrupts the wait and reports
// scheduled=true; the pending input stays queued for the next read.
func (viewer *Viewer) readChoice(ctx context.Context, ticks <-chan time.Time) (string, bool, error) {
	if ticks == nil {
		line, err := viewer.lines.ReadLine(ctx)
		if err != nil {
			return "", false, fmt.Errorf("%s: %w", errMessageReadChoice, err)
		}
		return normalizeChoice(line), false, nil
	}

	readContext, cancel := context.WithCancel(ctx)
	defer cancel()
	ticked := make(chan struct{})
	go func() {
		select {
		case <-ticks:
			close(ticked)
			cancel()
		case <-readContext.Done():
		}
	}()

	line, err := viewer.lines.ReadLine(readContext)
	if err == nil {
		return normalizeChoice(line), false, nil
	}
	if ctx.Err() == nil {
		select {
		case <-ticked:
			return "", true, nil
		default:
		}
	}
	return "", false, fmt.Errorf("%s: %w", errMessageReadChoice, err)
}

func (viewer *Viewer) handle(ctx context.Context, choice string) (bool, error) {
	switch choice {
	case choiceQuit:
		return true, nil
	case choiceRefresh, "":
		viewer.refresh(refreshTriggerManual)
	case choiceToggle:
		switch viewer.view.Kind {
		case weibo.ViewHome:
			viewer.setView(weibo.View{Kind: weibo.ViewSpecialFocus, Page: 1})
		default:
			viewer.setView(weibo.View{Kind: weibo.ViewHome, Page: 1})
		}
	case choiceChooseGroup:
		return false, viewer.chooseGroup(ctx)
	case choiceNext:
		next := viewer.view
		next.Page++
		viewer.setView(next)
	case choicePrevious:
		if viewer.view.Page <= 1 {
			viewer.notices = append(viewer.notices, viewer.catalog.AlreadyFirstPage)
			return false, nil
		}
		previous := viewer.view
		previous.Page--
		viewer.setView(previous)
	case choiceGoto:
		return false, viewer.gotoPage(ctx)
	}
	return false, nil
}

func (viewer *Viewer) chooseGroup(ctx context.Context) error {
	viewer.groups = viewer.source.Groups(ctx)
	viewer.display.Groups(viewer.groups)
	viewer.display.Prompt(viewer.catalog.GroupChoicePrompt)
	line, err := viewer.lines.ReadLine(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageReadChoice, err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return nil
	}
	index, err := strconv.Atoi(answer)
	if err != nil {
		viewer.notices = append(viewer.notices, viewer.catalog.InvalidNumber)
		return nil
	}
	switch {
	case index == 0:
	case index > 0 && index <= len(viewer.groups):
		viewer.setView(weibo.View{Kind: weibo.ViewGroup, GroupID: viewer.groups[index-1].ID, Page: 1})
	default:
		viewer.notices = append(viewer.notices, viewer.catalog.InvalidGroupIndex)
	}
	return nil
}

func (viewer *Viewer) gotoPage(ctx context.Context) error {
	viewer.display.Prompt(viewer.catalog.PagePrompt)
	line, err := viewer.lines.ReadLine(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageReadChoice, err)
	}
	page, err := strconv.Atoi(strings.TrimSpace(line))
	switch {
	case err != nil:
		viewer.notices = append(viewer.notices, viewer.catalog.InvalidPage)
	case page <= 0:
		viewer.notices = append(viewer.notices, viewer.catalog.PageMustBePositive)
	default:
		target := viewer.view
		target.Page = page
		viewer.setView(target)
	}
	return nil
}

func (viewer *Viewer) refresh(trigger string) {
	viewer.logger.Debug(logMessageRefresh, zap.String(logFieldTrigger, trigger), zap.Int(logFieldPage, viewer.view.Page))
	viewer.source.Invalidate(viewer.view)
}

func (viewer *Viewer) setView(view weibo.View) {
	viewer.view = view
	viewer.logger.Debug(logMessageViewChanged,
		zap.Int(logFieldKind, int(view.Kind)),
		zap.String(logFieldGroupID, view.GroupID),
		zap.Int(logFieldPage, view.Page))
}

func (viewer *Viewer) viewName(view weibo.View) string {
	switch view.Kind {
	case weibo.ViewSpecialFocus:
		return viewer.catalog.SpecialFocusName
	case weibo.ViewGroup:
		if group, found := feed.FindGroupByID(viewer.groups, view.GroupID); found {
			return group.Name
		}
		return viewer.catalog.GroupNoun + " " + view.GroupID
	default:
		return viewer.catalog.HomeName
	}
}

func (viewer *Viewer) toggleTargetName() string {
	if viewer.view.Kind == weibo.ViewHome {
		return viewer.catalog.SpecialFocusName
	}
	return viewer.catalog.HomeName
}

func normalizeChoice(line string) string {
	return strings.ToLower(strings.TrimSpace(line))
}
