package feed

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

const (
	jsonStringQuote   = '"'
	jsonObjectOpening = '{'
)

// UnmarshalJSON accepts verified and verified_type as booleans, numbers or numeric strings.
func (author *Author) UnmarshalJSON(data []byte) error {
	var raw struct {
		ScreenName   string          `json:"screen_name"`
		Verified     json.RawMessage `json:"verified"`
		VerifiedType json.RawMessage `json:"verified_type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*author = Author{
		ScreenName:   raw.ScreenName,
		Verified:     decodeFlag(raw.Verified),
		VerifiedType: int(decodeInteger(raw.VerifiedType)),
	}
	return nil
}

// UnmarshalJSON accepts an array of pictures or an object whose values are pictures.
// Object entries are ordered by their numeric keys.
func (pictures *Pictures) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == jsonNullLiteral {
		*pictures = nil
		return nil
	}
	if trimmed[0] != jsonObjectOpening {
		var list []Picture
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*pictures = list
		return nil
	}

	var keyed map[string]Picture
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return err
	}
	keys := make([]string, 0, len(keyed))
	for key := range keyed {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(left, right int) bool {
		if len(keys[left]) != len(keys[right]) {
			return len(keys[left]) < len(keys[right])
		}
		return keys[left] < keys[right]
	})
	list := make([]Picture, 0, len(keys))
	for _, key := range keys {
		list = append(list, keyed[key])
	}
	*pictures = list
	return nil
}

// UnmarshalJSON accepts the duration as a number or a numeric string.
func (media *MediaInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		Duration json.RawMessage `json:"duration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	media.Duration = decodeFloat(raw.Duration)
	return nil
}

// decodeFlag treats true, non-zero numbers and their string forms as set. Anything else is unset.
func decodeFlag(raw json.RawMessage) bool {
	text := scalarText(raw)
	if parsed, err := strconv.ParseBool(text); err == nil {
		return parsed
	}
	if number, err := strconv.ParseFloat(text, 64); err == nil {
		return number != 0
	}
	return false
}

func decodeInteger(raw json.RawMessage) int64 {
	text := scalarText(raw)
	if integerValue, err := strconv.ParseInt(text, 10, 64); err == nil {
		return integerValue
	}
	if floatValue, err := strconv.ParseFloat(text, 64); err == nil {
		return int64(floatValue)
	}
	return 0
}

func decodeFloat(raw json.RawMessage) float64 {
	floatValue, err := strconv.ParseFloat(scalarText(raw), 64)
	if err != nil {
		return 0
	}
	return floatValue
}

// scalarText returns the literal text of a JSON scalar with string quotes removed.
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == jsonStringQuote {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return ""
		}
		return strings.TrimSpace(text)
	}
	return string(trimmed)
}
