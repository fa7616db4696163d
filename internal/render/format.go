package render

import (
	"fmt"
	"regexp"
	"time"

	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/i18n"
)

const (
	htmlTagPattern     = `<[^>]+>`
	verifiedMark       = "✓ "
	unknownScreenName  = "未知用户"
	daysPerYear        = 365
	daysPerMonth       = 30
	secondsPerHour     = 3600
	secondsPerMinute   = 60
	hoursPerDay        = 24
	separatorCharacter = "─"
)

var htmlTagRegex = regexp.MustCompile(htmlTagPattern)

// RecordView is a display-ready timeline record shared by the terminal and HTML renderers.
type RecordView struct {
	Author       string
	Verified     bool
	RelativeTime string
	Text         string
	Repost       *RecordView
	Attachments  int
	Multimedia   bool
	Stats        string
}

// NewRecordView prepares record for display at the supplied instant.
func NewRecordView(record feed.TimelineRecord, catalog i18n.Catalog, now time.Time) RecordView {
	view := RecordView{
		Author:       screenName(record.User),
		Verified:     record.User.Verified,
		RelativeTime: RelativeTime(record.CreatedAt, now, catalog),
		Text:         CleanText(record.Text),
		Attachments:  len(record.Pictures),
		Multimedia:   record.HasVideo(),
		Stats:        fmt.Sprintf(catalog.StatsFormat, record.RepostsCount, record.CommentsCount, record.AttitudesCount),
	}
	if record.Retweeted != nil {
		view.Repost = &RecordView{
			Author: screenName(record.Retweeted.User),
			Text:   CleanText(record.Retweeted.Text),
		}
	}
	return view
}

// RelativeTime renders createdAt relative to now. Unparseable timestamps are returned unchanged.
func RelativeTime(createdAt string, now time.Time, catalog i18n.Catalog) string {
	created, err := time.Parse(feed.CreatedAtLayout, createdAt)
	if err != nil {
		return createdAt
	}
	elapsed := now.Sub(created)
	if elapsed < 0 {
		return catalog.JustNow
	}

	days := int(elapsed.Hours()) / hoursPerDay
	seconds := int(elapsed.Seconds())
	switch {
	case days > daysPerYear:
		return fmt.Sprintf(catalog.YearsAgoFormat, days/daysPerYear)
	case days > daysPerMonth:
		return fmt.Sprintf(catalog.MonthsAgoFormat, days/daysPerMonth)
	case days > 0:
		return fmt.Sprintf(catalog.DaysAgoFormat, days)
	case seconds > secondsPerHour:
		return fmt.Sprintf(catalog.HoursAgoFormat, seconds/secondsPerHour)
	case seconds > secondsPerMinute:
		return fmt.Sprintf(catalog.MinutesAgoFormat, seconds/secondsPerMinute)
	default:
		return catalog.JustNow
	}
}

// CleanText strips HTML tags from a record body.
func CleanText(text string) string {
	return htmlTagRegex.ReplaceAllString(text, "")
}

func screenName(author feed.Author) string {
	if author.ScreenName == "" {
		return unknownScreenName
	}
	return author.ScreenName
}
