// Package i18n holds the message catalogue for user-facing strings: tool
// results sent back to the generating agent and CLI summaries.
package i18n

import (
	"embed"
	"fmt"

	"github.com/leonelquinteros/gotext"
)

//go:embed locales/*.po
var locales embed.FS

// DefaultLocale is used when a requested locale has no catalogue
const DefaultLocale = "en"

// Catalog translates UPPER_SNAKE message keys
type Catalog struct {
	locale string
	po     *gotext.Po
}

// Load returns the catalogue for locale, falling back to DefaultLocale
func Load(locale string) (*Catalog, error) {
	data, err := locales.ReadFile("locales/" + locale + ".po")
	if err != nil {
		if locale == DefaultLocale {
			return nil, fmt.Errorf("load %s catalogue: %w", locale, err)
		}
		return Load(DefaultLocale)
	}
	po := gotext.NewPo()
	po.Parse(data)
	return &Catalog{locale: locale, po: po}, nil
}

// MustLoad is Load for package-level defaults; it panics on a missing
// embedded default catalogue.
func MustLoad(locale string) *Catalog {
	c, err := Load(locale)
	if err != nil {
		panic(err)
	}
	return c
}

// Locale returns the loaded locale
func (c *Catalog) Locale() string {
	return c.locale
}

// Get translates key and formats it with vars. Unknown keys come back as is.
func (c *Catalog) Get(key string, vars ...any) string {
	if c == nil || c.po == nil {
		if len(vars) == 0 {
			return key
		}
		return fmt.Sprintf(key, vars...)
	}
	return c.po.Get(key, vars...)
}
