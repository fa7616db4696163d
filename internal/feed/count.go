package feed

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

const (
	numberPattern          = `(\d+(\.\d+)?)`
	tenThousandMarker      = "万"
	hundredMillionMarker   = "亿"
	tenThousandMultiplier  = 10000
	hundredMillionMultiple = 100000000
	jsonNullLiteral        = "null"
)

var numberRegex = regexp.MustCompile(numberPattern)

// Count is an engagement counter. The platform sends plain numbers or abbreviated strings such as "1.2万".
type Count int64

// UnmarshalJSON accepts JSON numbers, numeric strings and abbreviated counter strings.
func (count *Count) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == jsonNullLiteral {
		*count = 0
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*count = Count(ExtractNumber(text))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return err
	}
	if integerValue, err := number.Int64(); err == nil {
		*count = Count(integerValue)
		return nil
	}
	floatValue, err := number.Float64()
	if err != nil {
		return err
	}
	*count = Count(floatValue)
	return nil
}

// ExtractNumber reads the first number in text and applies the 万 and 亿 multipliers.
// Text without digits yields zero.
func ExtractNumber(text string) int64 {
	match := numberRegex.FindStringSubmatch(text)
	if len(match) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	switch {
	case strings.Contains(text, tenThousandMarker):
		return int64(value * tenThousandMultiplier)
	case strings.Contains(text, hundredMillionMarker):
		return int64(value * hundredMillionMultiple)
	default:
		return int64(value)
	}
}
