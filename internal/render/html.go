package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/hyperweibo/hyperweibo/internal/feed"
	"github.com/hyperweibo/hyperweibo/internal/i18n"
)

const timelineTemplateName = "timeline.html.tmpl"

//go:embed templates/*.tmpl
var templateFiles embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFiles, "templates/*.tmpl"))

// Page describes one timeline page for the HTML renderer.
type Page struct {
	Language i18n.Language
	Catalog  i18n.Catalog
	Title    string
	Page     int
	Mock     bool
	Groups   []feed.Group
	Records  []feed.TimelineRecord
	Now      time.Time
}

type pageData struct {
	Language          i18n.Language
	ApplicationTitle  string
	HomeName          string
	SpecialFocusName  string
	MockNotice        string
	RepostFormat      string
	AttachmentsFormat string
	MultimediaMarker  string
	Title             string
	RecordCount       string
	Page              int
	PreviousPage      int
	NextPage          int
	Mock              bool
	Groups            []feed.Group
	Records           []RecordView
}

// WriteHTML renders page as a standalone HTML document.
func WriteHTML(output io.Writer, page Page) error {
	now := page.Now
	if now.IsZero() {
		now = time.Now()
	}
	views := make([]RecordView, 0, len(page.Records))
	for _, record := range page.Records {
		views = append(views, NewRecordView(record, page.Catalog, now))
	}
	data := pageData{
		Language:          page.Language,
		ApplicationTitle:  page.Catalog.ApplicationTitle,
		HomeName:          page.Catalog.HomeName,
		SpecialFocusName:  page.Catalog.SpecialFocusName,
		MockNotice:        page.Catalog.MockModeNotice,
		RepostFormat:      page.Catalog.RepostFormat,
		AttachmentsFormat: page.Catalog.AttachmentsFormat,
		MultimediaMarker:  page.Catalog.MultimediaMarker,
		Title:             page.Title,
		RecordCount:       fmt.Sprintf(page.Catalog.RecordCountFormat, len(page.Records)),
		Page:              page.Page,
		PreviousPage:      page.Page - 1,
		NextPage:          page.Page + 1,
		Mock:              page.Mock,
		Groups:            page.Groups,
		Records:           views,
	}
	return pageTemplates.ExecuteTemplate(output, timelineTemplateName, data)
}
