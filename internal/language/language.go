package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// bibliographic maps ISO 639-2/B codes that Plex and older muxers still emit
// to their terminology form.
var bibliographic = map[string]string{
	"alb": "sqi", "arm": "hye", "baq": "eus", "bur": "mya", "chi": "zho",
	"cze": "ces", "dut": "nld", "fre": "fra", "geo": "kat", "ger": "deu",
	"gre": "ell", "ice": "isl", "mac": "mkd", "mao": "mri", "may": "msa",
	"per": "fas", "rum": "ron", "slo": "slk", "tib": "bod", "wel": "cym",
}

// common seeds the English-name index used to accept word forms such as
// "japanese" in place of a code.
var common = []string{
	"ar", "cs", "da", "de", "el", "en", "es", "fi", "fr", "he", "hi", "hu",
	"id", "it", "ja", "ko", "nl", "no", "pl", "pt", "ro", "ru", "sv", "th",
	"tr", "uk", "vi", "zh",
}

var (
	namer  = display.English.Languages()
	byName map[string]language.Base
)

func init() {
	byName = make(map[string]language.Base, len(common))
	for _, code := range common {
		base := language.MustParseBase(code)
		byName[strings.ToLower(namer.Name(language.Make(code)))] = base
	}
}

// Base resolves a 2- or 3-letter code, a BCP 47 tag or an English language
// name to its base language.
func Base(code string) (language.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == "und" {
		return language.Base{}, false
	}
	if alias, ok := bibliographic[code]; ok {
		code = alias
	}
	if base, ok := byName[code]; ok {
		return base, true
	}
	if base, err := language.ParseBase(code); err == nil {
		return base, true
	}
	if tag, err := language.Parse(code); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base, true
		}
	}
	return language.Base{}, false
}

// ToISO2 converts a recognized code or name to its 2-letter form, falling
// back to the 3-letter code for languages without one. Unrecognized input
// yields "".
func ToISO2(code string) string {
	base, ok := Base(code)
	if !ok {
		return ""
	}
	return base.String()
}

// ToISO3 converts a recognized code or name to ISO 639-2/T. Unrecognized
// input yields "und".
func ToISO3(code string) string {
	base, ok := Base(code)
	if !ok {
		return "und"
	}
	return base.ISO3()
}

// DisplayName returns the English name of a language code. Empty input
// yields "Unknown"; unrecognized input is echoed upper-cased.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	base, ok := Base(trimmed)
	if !ok {
		return strings.ToUpper(trimmed)
	}
	tag, err := language.Compose(base)
	if err != nil {
		return strings.ToUpper(trimmed)
	}
	if name := namer.Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(trimmed)
}

// Same reports whether two codes or names denote the same base language.
func Same(a, b string) bool {
	left, ok := Base(a)
	if !ok {
		return false
	}
	right, ok := Base(b)
	return ok && left == right
}
