package credentials

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	binaryCookiesMagic        = "cook"
	binaryCookiesPageHeader   = 0x00000100
	binaryCookieHeaderSize    = 56
	binaryCookieURLOffset     = 16
	binaryCookieNameOffset    = 20
	binaryCookiePathOffset    = 24
	binaryCookieValueOffset   = 28
	binaryCookieExpiryOffset  = 40
	binaryCookieCreatedOffset = 48
	safariCookiesFile         = "Cookies.binarycookies"

	errMessageBinaryCookiesMagic     = "not a binary cookies file"
	errMessageBinaryCookiesTruncated = "binary cookies file is truncated"
	errMessageBinaryCookiesPage      = "binary cookies page has an unexpected header"
	errMessageMissingSafariCookies   = "safari cookie file not found"
)

var (
	errBinaryCookiesMagic     = errors.New(errMessageBinaryCookiesMagic)
	errBinaryCookiesTruncated = errors.New(errMessageBinaryCookiesTruncated)
	errBinaryCookiesPage      = errors.New(errMessageBinaryCookiesPage)
	errMissingSafariCookies   = errors.New(errMessageMissingSafariCookies)

	appleReferenceEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// BinaryCookie is one record of a Safari binary cookie file.
type BinaryCookie struct {
	Domain    string
	Name      string
	Path      string
	Value     string
	Expires   time.Time
	CreatedAt time.Time
}

// ParseBinaryCookies decodes a Cookies.binarycookies file. The file header is big-endian and the pages
// are little-endian.
func ParseBinaryCookies(data []byte) ([]BinaryCookie, error) {
	if len(data) < 8 || string(data[:4]) != binaryCookiesMagic {
		return nil, errBinaryCookiesMagic
	}
	pageCount := int(binary.BigEndian.Uint32(data[4:8]))
	sizesEnd := 8 + pageCount*4
	if pageCount < 0 || sizesEnd > len(data) {
		return nil, errBinaryCookiesTruncated
	}

	cookies := make([]BinaryCookie, 0)
	pageStart := sizesEnd
	for pageIndex := 0; pageIndex < pageCount; pageIndex++ {
		pageSize := int(binary.BigEndian.Uint32(data[8+pageIndex*4 : 12+pageIndex*4]))
		pageEnd := pageStart + pageSize
		if pageEnd > len(data) {
			return nil, errBinaryCookiesTruncated
		}
		pageCookies, err := parseBinaryCookiePage(data[pageStart:pageEnd])
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageIndex, err)
		}
		cookies = append(cookies, pageCookies...)
		pageStart = pageEnd
	}
	return cookies, nil
}

func parseBinaryCookiePage(page []byte) ([]BinaryCookie, error) {
	if len(page) < 8 {
		return nil, errBinaryCookiesTruncated
	}
	if binary.BigEndian.Uint32(page[:4]) != binaryCookiesPageHeader {
		return nil, errBinaryCookiesPage
	}
	cookieCount := int(binary.LittleEndian.Uint32(page[4:8]))
	offsetsEnd := 8 + cookieCount*4
	if cookieCount < 0 || offsetsEnd > len(page) {
		return nil, errBinaryCookiesTruncated
	}

	cookies := make([]BinaryCookie, 0, cookieCount)
	for cookieIndex := 0; cookieIndex < cookieCount; cookieIndex++ {
		cookieOffset := int(binary.LittleEndian.Uint32(page[8+cookieIndex*4 : 12+cookieIndex*4]))
		if cookieOffset+4 > len(page) {
			return nil, errBinaryCookiesTruncated
		}
		cookieSize := int(binary.LittleEndian.Uint32(page[cookieOffset : cookieOffset+4]))
		if cookieSize < binaryCookieHeaderSize || cookieOffset+cookieSize > len(page) {
			return nil, errBinaryCookiesTruncated
		}
		cookie, err := parseBinaryCookie(page[cookieOffset : cookieOffset+cookieSize])
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func parseBinaryCookie(record []byte) (BinaryCookie, error) {
	readString := func(fieldOffset int) (string, error) {
		start := int(binary.LittleEndian.Uint32(record[fieldOffset : fieldOffset+4]))
		if start >= len(record) {
			return "", errBinaryCookiesTruncated
		}
		end := bytes.IndexByte(record[start:], 0)
		if end < 0 {
			return "", errBinaryCookiesTruncated
		}
		return string(record[start : start+end]), nil
	}

	domain, err := readString(binaryCookieURLOffset)
	if err != nil {
		return BinaryCookie{}, err
	}
	name, err := readString(binaryCookieNameOffset)
	if err != nil {
		return BinaryCookie{}, err
	}
	path, err := readString(binaryCookiePathOffset)
	if err != nil {
		return BinaryCookie{}, err
	}
	value, err := readString(binaryCookieValueOffset)
	if err != nil {
		return BinaryCookie{}, err
	}
	return BinaryCookie{
		Domain:    domain,
		Name:      name,
		Path:      path,
		Value:     value,
		Expires:   appleTime(record[binaryCookieExpiryOffset : binaryCookieExpiryOffset+8]),
		CreatedAt: appleTime(record[binaryCookieCreatedOffset : binaryCookieCreatedOffset+8]),
	}, nil
}

func appleTime(field []byte) time.Time {
	seconds := math.Float64frombits(binary.LittleEndian.Uint64(field))
	return appleReferenceEpoch.Add(time.Duration(seconds * float64(time.Second)))
}

// SafariConfig configures a SafariStore.
type SafariConfig struct {
	// CookieFiles lists candidate cookie files in lookup order.
	CookieFiles []string
	// Now supplies the current time for expiry filtering; defaults to time.Now.
	Now func() time.Time
}

// SafariStore reads Safari's binary cookie file.
type SafariStore struct {
	cookieFiles []string
	now         func() time.Time
}

// NewSafariStore constructs a SafariStore.
func NewSafariStore(configuration SafariConfig) *SafariStore {
	cookieFiles := configuration.CookieFiles
	if len(cookieFiles) == 0 {
		cookieFiles = DefaultSafariCookieFiles()
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	return &SafariStore{cookieFiles: cookieFiles, now: now}
}

// Cookies returns the unexpired cookies whose host ends in domainSuffix.
func (store *SafariStore) Cookies(ctx context.Context, domainSuffix string) (Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, cookieFile := range store.cookieFiles {
		data, err := os.ReadFile(cookieFile)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		cookies, err := ParseBinaryCookies(data)
		if err != nil {
			return nil, err
		}
		now := store.now()
		set := Set{}
		for _, cookie := range cookies {
			if !hostMatchesSuffix(cookie.Domain, domainSuffix) {
				continue
			}
			if !cookie.Expires.IsZero() && !now.Before(cookie.Expires) {
				continue
			}
			set[cookie.Name] = cookie.Value
		}
		return set, nil
	}
	return nil, fmt.Errorf("%w: %s", errMissingSafariCookies, strings.Join(store.cookieFiles, ", "))
}

// DefaultSafariCookieFiles returns the sandboxed and legacy cookie file locations.
func DefaultSafariCookieFiles() []string {
	home := homeDirectory()
	return []string{
		filepath.Join(home, "Library", "Containers", "com.apple.Safari", "Data", "Library", "Cookies", safariCookiesFile),
		filepath.Join(home, "Library", "Cookies", safariCookiesFile),
	}
}
