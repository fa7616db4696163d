package render

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/i18n"
)

const (
	// DefaultWidth is used when the output is not a terminal.
	DefaultWidth = 80

	clearScreenSequence = "\033[H\033[2J"
)

// Config customizes a Terminal.
type Config struct {
	Output  io.Writer
	Catalog i18n.Catalog
	// Width of the record separator; zero selects DefaultWidth.
	Width int
	// Color enables ANSI colors and screen clearing.
	Color bool
	Now   func() time.Time
}

// Terminal writes timelines, tables and notices to a text stream.
type Terminal struct {
	output    io.Writer
	catalog   i18n.Catalog
	width     int
	color     bool
	now       func() time.Time
	heading   *color.Color
	bold      *color.Color
	faint     *color.Color
	italic    *color.Color
	repost    *color.Color
	warning   *color.Color
	failure   *color.Color
	highlight *color.Color
}

// NewTerminal constructs a Terminal.
func NewTerminal(configuration Config) *Terminal {
	output := configuration.Output
	if output == nil {
		output = os.Stdout
	}
	width := configuration.Width
	if width <= 0 {
		width = DefaultWidth
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	terminal := &Terminal{
		output:    output,
		catalog:   configuration.Catalog,
		width:     width,
		color:     configuration.Color,
		now:       now,
		heading:   color.New(color.FgCyan, color.Bold),
		bold:      color.New(color.Bold),
		faint:     color.New(color.Faint),
		italic:    color.New(color.Italic),
		repost:    color.New(color.FgCyan, color.Bold),
		warning:   color.New(color.FgYellow, color.Bold),
		failure:   color.New(color.FgRed, color.Bold),
		highlight: color.New(color.FgGreen, color.Bold),
	}
	for _, palette := range []*color.Color{terminal.heading, terminal.bold, terminal.faint, terminal.italic, terminal.repost, terminal.warning, terminal.failure, terminal.highlight} {
		if configuration.Color {
			palette.EnableColor()
		} else {
			palette.DisableColor()
		}
	}
	return terminal
}

// Catalog returns the strings the terminal renders with.
func (terminal *Terminal) Catalog() i18n.Catalog {
	return terminal.catalog
}

// Timeline prints a title, the record count and every record.
func (terminal *Terminal) Timeline(title string, records []feed.TimelineRecord) {
	terminal.heading.Fprintln(terminal.output, title)
	terminal.faint.Fprintln(terminal.output, fmt.Sprintf(terminal.catalog.RecordCountFormat, len(records)))
	fmt.Fprintln(terminal.output)

	now := terminal.now()
	for _, record := range records {
		terminal.record(NewRecordView(record, terminal.catalog, now))
	}
}

func (terminal *Terminal) record(view RecordView) {
	mark := ""
	if view.Verified {
		mark = verifiedMark
	}
	terminal.bold.Fprint(terminal.output, mark+view.Author)
	fmt.Fprint(terminal.output, " ")
	terminal.faint.Fprintln(terminal.output, view.RelativeTime+":")
	fmt.Fprintln(terminal.output, view.Text)

	if view.Repost != nil {
		fmt.Fprintln(terminal.output)
		terminal.repost.Fprintln(terminal.output, fmt.Sprintf(terminal.catalog.RepostFormat, view.Repost.Author))
		fmt.Fprintln(terminal.output, view.Repost.Text)
	}
	if view.Attachments > 0 {
		fmt.Fprintln(terminal.output)
		terminal.italic.Fprintln(terminal.output, fmt.Sprintf(terminal.catalog.AttachmentsFormat, view.Attachments))
	}
	if view.Multimedia {
		fmt.Fprintln(terminal.output)
		terminal.italic.Fprintln(terminal.output, terminal.catalog.MultimediaMarker)
	}
	fmt.Fprintln(terminal.output)
	terminal.faint.Fprintln(terminal.output, view.Stats)
	fmt.Fprintln(terminal.output)
	fmt.Fprintln(terminal.output, terminal.Separator())
}

// Separator is a horizontal rule as wide as the terminal.
func (terminal *Terminal) Separator() string {
	return strings.Repeat(separatorCharacter, terminal.width)
}

// Groups prints the group list as a numbered table.
func (terminal *Terminal) Groups(groups []feed.Group) {
	writer := table.NewWriter()
	writer.SetOutputMirror(terminal.output)
	writer.SetTitle(terminal.catalog.GroupListTitle)
	writer.AppendHeader(table.Row{terminal.catalog.GroupIndexColumn, terminal.catalog.GroupIDColumn, terminal.catalog.GroupNameColumn})
	for index, group := range groups {
		writer.AppendRow(table.Row{index + 1, group.ID, group.Name})
	}
	writer.SetStyle(table.StyleRounded)
	writer.Render()
}

// UserInfo prints the profile as a two-column table.
func (terminal *Terminal) UserInfo(info feed.UserInfo) {
	writer := table.NewWriter()
	writer.SetOutputMirror(terminal.output)
	writer.SetTitle(terminal.catalog.UserInfoTitle)
	writer.AppendHeader(table.Row{terminal.catalog.UserInfoItemColumn, terminal.catalog.UserInfoValueColumn})
	writer.AppendRows([]table.Row{
		{terminal.catalog.UserInfoScreenName, info.ScreenName},
		{terminal.catalog.UserInfoDescription, info.Description},
		{terminal.catalog.UserInfoFollowers, strconv.FormatInt(info.FollowersCount, 10)},
		{terminal.catalog.UserInfoFollows, strconv.FormatInt(info.FollowCount, 10)},
		{terminal.catalog.UserInfoStatuses, strconv.FormatInt(info.StatusesCount, 10)},
	})
	writer.SetStyle(table.StyleRounded)
	writer.Render()
}

// Heading prints a highlighted line.
func (terminal *Terminal) Heading(text string) {
	terminal.heading.Fprintln(terminal.output, text)
}

// Line prints plain text.
func (terminal *Terminal) Line(text string) {
	fmt.Fprintln(terminal.output, text)
}

// Prompt prints text without a trailing newline.
func (terminal *Terminal) Prompt(text string) {
	fmt.Fprint(terminal.output, text)
}

// Success prints a confirmation.
func (terminal *Terminal) Success(text string) {
	terminal.highlight.Fprintln(terminal.output, text)
}

// Warning prints a warning.
func (terminal *Terminal) Warning(text string) {
	terminal.warning.Fprintln(terminal.output, text)
}

// Failure prints an error message.
func (terminal *Terminal) Failure(text string) {
	terminal.failure.Fprintln(terminal.output, text)
}

// Clear clears the screen when colors are enabled.
func (terminal *Terminal) Clear() {
	if terminal.color {
		fmt.Fprint(terminal.output, clearScreenSequence)
	}
}

// IsTerminal reports whether file is an interactive terminal.
func IsTerminal(file *os.File) bool {
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// TerminalWidth returns the column count of file, or DefaultWidth when it is not a terminal.
func TerminalWidth(file *os.File) int {
	if !IsTerminal(file) {
		return DefaultWidth
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}

// TerminalHeight returns the row count of file, or zero when it is unknown.
func TerminalHeight(file *os.File) int {
	if !IsTerminal(file) {
		return 0
	}
	_, height, err := term.GetSize(int(file.Fd()))
	if err != nil || height < 0 {
		return 0
	}
	return height
}
