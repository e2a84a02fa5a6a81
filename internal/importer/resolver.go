package importer

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/conorfennell/flashdeck/internal/media"
)

// MediaStore is satisfied by *media.Store.
type MediaStore interface {
	Save(data []byte, ext string) (string, error)
	SaveDataURI(uri string) (string, error)
	Exists(name string) bool
	NameFromURL(locator string) (string, bool)
}

var urlExtRe = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// resolver turns image locators into stored media names. Results,
// including failures, are memoized for the lifetime of one import run.
type resolver struct {
	log     *slog.Logger
	media   MediaStore
	fetcher *Fetcher
	memo    map[string]string
	failed  int
}

func newResolver(logger *slog.Logger, store MediaStore, fetcher *Fetcher) *resolver {
	return &resolver{
		log:     logger,
		media:   store,
		fetcher: fetcher,
		memo:    make(map[string]string),
	}
}

// Resolve returns the media name for locator, or "" when the card should
// have no image.
func (r *resolver) Resolve(ctx context.Context, locator string) string {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return ""
	}
	if name, ok := r.memo[locator]; ok {
		return name
	}

	name, err := r.resolve(ctx, locator)
	if err != nil {
		r.failed++
		r.log.WarnContext(ctx, "image skipped",
			slog.String("locator", abbreviate(locator)), slog.String("error", err.Error()))
	}
	r.memo[locator] = name
	return name
}

func (r *resolver) resolve(ctx context.Context, locator string) (string, error) {
	if strings.HasPrefix(locator, "data:") {
		return r.media.SaveDataURI(locator)
	}
	if name, ok := r.media.NameFromURL(locator); ok {
		if r.media.Exists(name) {
			return name, nil
		}
		return "", errUnknownLocator
	}

	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errUnknownLocator
	}
	if r.fetcher == nil {
		return "", errNoFetcher
	}

	data, err := r.fetcher.Fetch(ctx, locator)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if !urlExtRe.MatchString(ext) {
		ext = media.Extension("", data)
	}
	return r.media.Save(data, ext)
}

// abbreviate keeps log records short when the locator is a data URI.
func abbreviate(locator string) string {
	const limit = 80
	if len(locator) <= limit {
		return locator
	}
	return locator[:limit] + "..."
}
