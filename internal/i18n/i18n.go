// Package i18n selects message printers for CLI and HTTP output.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

type contextKey struct{}

var printerKey = contextKey{}

// MatchLanguage returns the best matching language for an Accept-Language value.
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// WithPrinter returns a new context with the printer injected
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from the context, or a default one
func GetPrinter(ctx context.Context) *message.Printer {
	if p, ok := ctx.Value(printerKey).(*message.Printer); ok {
		return p
	}
	return message.NewPrinter(DefaultLang)
}

// NewCLIPrinter returns a printer for the locale in LC_ALL or LANG.
func NewCLIPrinter() *message.Printer {
	return message.NewPrinter(localeTag(os.Getenv("LC_ALL"), os.Getenv("LANG")))
}

func localeTag(values ...string) language.Tag {
	lang := ""
	for _, v := range values {
		if v != "" {
			lang = v
			break
		}
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// "en_US.UTF-8" -> "en_US"
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return MatchLanguage(lang)
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}
