package feedparser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperweibo/hyperweibo/internal/feed"
)

const (
	renderDataMarker            = "$render_data"
	renderDataPattern           = `(?s)\$render_data\s*=\s*(\[.*?\])\[0\]`
	scriptSelector              = "script"
	renderDataStatusField       = "status"
	jsonArrayOpening            = '['
	jsonObjectOpening           = '{'
	errMessageUnrecognized      = "response is neither a status list nor a render data page"
	errMessageMissingStatuses   = "json response has no data.statuses list"
	errMessageMissingRenderData = "html response has no render data script"
	errMessageEmptyRenderData   = "render data array is empty"
	errMessageMissingStatus     = "render data element has no status field"
	errMessageStatusShape       = "render data status is neither an object nor an array"
	errMessageParseHTML         = "parse html document"
	errMessageUndecodable       = "no record in data.statuses could be decoded"
	errMessageRecordFormat      = "status %d: %w"
	errMessageJSONPath          = "json path"
)

var (
	// ErrUnrecognizedFormat indicates that neither the JSON path nor the HTML fallback produced records.
	ErrUnrecognizedFormat = errors.New(errMessageUnrecognized)
	// ErrMissingStatuses indicates a JSON body without the data.statuses list.
	ErrMissingStatuses = errors.New(errMessageMissingStatuses)
	// ErrUndecodableStatuses indicates a non-empty data.statuses list in which every record failed to decode.
	ErrUndecodableStatuses = errors.New(errMessageUndecodable)

	errMissingRenderData = errors.New(errMessageMissingRenderData)
	errEmptyRenderData   = errors.New(errMessageEmptyRenderData)
	errMissingStatus     = errors.New(errMessageMissingStatus)
	errStatusShape       = errors.New(errMessageStatusShape)

	renderDataRegex = regexp.MustCompile(renderDataPattern)
)

type statusEnvelope struct {
	Data *struct {
		Statuses *[]json.RawMessage `json:"statuses"`
	} `json:"data"`
}

// ResponseParser extracts timeline records from a raw response body.
type ResponseParser struct {
	body    []byte
	skipped []error
}

// NewResponseParser constructs a parser for the provided body.
func NewResponseParser(body []byte) *ResponseParser {
	return &ResponseParser{body: body}
}

// ExtractStatuses tries the JSON status list first and falls back to the embedded render data.
// When both fail the error carries both causes and matches ErrUnrecognizedFormat.
func (parser *ResponseParser) ExtractStatuses() ([]feed.TimelineRecord, error) {
	records, jsonErr := parser.ExtractJSONStatuses()
	if jsonErr == nil {
		return records, nil
	}
	records, htmlErr := parser.ExtractRenderDataStatuses()
	if htmlErr != nil {
		return nil, JoinFallbackError(htmlErr, jsonErr)
	}
	return records, nil
}

// ExtractJSONStatuses decodes the body as JSON and returns the records of data.statuses.
// Records that fail to decode are skipped and reported by Skipped.
func (parser *ResponseParser) ExtractJSONStatuses() ([]feed.TimelineRecord, error) {
	parser.skipped = nil

	var envelope statusEnvelope
	if err := json.Unmarshal(parser.body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil || envelope.Data.Statuses == nil {
		return nil, ErrMissingStatuses
	}

	records, skipped := decodeRecords(*envelope.Data.Statuses)
	parser.skipped = skipped
	if len(records) == 0 && len(skipped) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrUndecodableStatuses, errors.Join(skipped...))
	}
	return records, nil
}

// decodeRecords decodes each record on its own so one malformed status does not drop the page.
func decodeRecords(rawRecords []json.RawMessage) ([]feed.TimelineRecord, []error) {
	records := make([]feed.TimelineRecord, 0, len(rawRecords))
	var skipped []error
	for index, rawRecord := range rawRecords {
		var record feed.TimelineRecord
		if err := json.Unmarshal(rawRecord, &record); err != nil {
			skipped = append(skipped, fmt.Errorf(errMessageRecordFormat, index, err))
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}

// Skipped returns the decode failures of records dropped by the last ExtractJSONStatuses call.
func (parser *ResponseParser) Skipped() []error {
	return parser.skipped
}

// JoinFallbackError reports a failed render data fallback together with the JSON failure that triggered it.
func JoinFallbackError(htmlErr error, jsonErr error) error {
	return fmt.Errorf("%w; %s: %w", htmlErr, errMessageJSONPath, jsonErr)
}

// ExtractRenderDataStatuses scans script blocks for the render data assignment and returns the
// status field of its first element. Failures wrap ErrUnrecognizedFormat.
func (parser *ResponseParser) ExtractRenderDataStatuses() ([]feed.TimelineRecord, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(parser.body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnrecognizedFormat, errMessageParseHTML, err)
	}

	var (
		records []feed.TimelineRecord
		lastErr = errMissingRenderData
		found   bool
	)
	document.Find(scriptSelector).EachWithBreak(func(_ int, selection *goquery.Selection) bool {
		scriptText := selection.Text()
		if !strings.Contains(scriptText, renderDataMarker) {
			return true
		}
		match := renderDataRegex.FindStringSubmatch(scriptText)
		if len(match) < 2 {
			return true
		}
		extracted, extractErr := decodeRenderData(match[1])
		if extractErr != nil {
			lastErr = extractErr
			return true
		}
		records = extracted
		found = true
		return false
	})
	if !found {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, lastErr)
	}
	return records, nil
}

func decodeRenderData(arrayText string) ([]feed.TimelineRecord, error) {
	var elements []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arrayText), &elements); err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, errEmptyRenderData
	}
	rawStatus, exists := elements[0][renderDataStatusField]
	if !exists {
		return nil, errMissingStatus
	}

	trimmedStatus := bytes.TrimSpace(rawStatus)
	if len(trimmedStatus) == 0 {
		return nil, errStatusShape
	}
	switch trimmedStatus[0] {
	case jsonArrayOpening:
		var rawRecords []json.RawMessage
		if err := json.Unmarshal(trimmedStatus, &rawRecords); err != nil {
			return nil, err
		}
		records, skipped := decodeRecords(rawRecords)
		if len(records) == 0 && len(skipped) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrUndecodableStatuses, errors.Join(skipped...))
		}
		return records, nil
	case jsonObjectOpening:
		var record feed.TimelineRecord
		if err := json.Unmarshal(trimmedStatus, &record); err != nil {
			return nil, err
		}
		return []feed.TimelineRecord{record}, nil
	default:
		return nil, errStatusShape
	}
}
