// Package lang holds the languages JARVIS can listen and answer in,
// together with the prompts and canned phrases for each of them.
package lang

import (
	"strings"
)

type Code string

const (
	PtBR Code = "pt-BR"
	EnUS Code = "en-US"
	EsES Code = "es-ES"
	FrFR Code = "fr-FR"
	DeDE Code = "de-DE"
)

const Default = PtBR

var Supported = []Code{PtBR, EnUS, EsES, FrFR, DeDE}

var aliases = map[string]Code{
	"pt-br":      PtBR,
	"pt":         PtBR,
	"portuguese": PtBR,
	"portugues":  PtBR,
	"português":  PtBR,
	"en-us":      EnUS,
	"en":         EnUS,
	"english":    EnUS,
	"ingles":     EnUS,
	"inglês":     EnUS,
	"es-es":      EsES,
	"es":         EsES,
	"spanish":    EsES,
	"espanhol":   EsES,
	"español":    EsES,
	"espanol":    EsES,
	"fr-fr":      FrFR,
	"fr":         FrFR,
	"french":     FrFR,
	"francês":    FrFR,
	"frances":    FrFR,
	"français":   FrFR,
	"francais":   FrFR,
	"de-de":      DeDE,
	"de":         DeDE,
	"german":     DeDE,
	"alemão":     DeDE,
	"alemao":     DeDE,
	"deutsch":    DeDE,
}

// Parse accepts BCP-47 style tags in any case ("pt_br", "EN-us"),
// bare ISO codes and language names in the supported languages.
func Parse(s string) (Code, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", "-")
	if key == "" {
		return "", false
	}

	c, ok := aliases[key]
	return c, ok
}

// FromWhisper maps a detected two-letter language to a supported code.
func FromWhisper(iso string) (Code, bool) {
	iso = strings.ToLower(strings.TrimSpace(iso))
	if i := strings.IndexAny(iso, "-_"); i > 0 {
		iso = iso[:i]
	}
	switch iso {
	case "pt", "en", "es", "fr", "de":
		return aliases[iso], true
	}
	return "", false
}

func (c Code) Valid() bool {
	for _, s := range Supported {
		if c == s {
			return true
		}
	}
	return false
}

// Whisper returns the ISO 639-1 code whisper.cpp expects.
func (c Code) Whisper() string {
	if !c.Valid() {
		return "auto"
	}
	return strings.ToLower(string(c)[:2])
}

// Voice returns the espeak-ng voice name.
func (c Code) Voice() string {
	switch c {
	case PtBR:
		return "pt-br"
	case EnUS:
		return "en-us"
	case EsES:
		return "es"
	case FrFR:
		return "fr-fr"
	case DeDE:
		return "de"
	default:
		return "pt-br"
	}
}

// Name is the language's own name, used inside prompts and confirmations.
func (c Code) Name() string {
	switch c {
	case PtBR:
		return "português brasileiro"
	case EnUS:
		return "English"
	case EsES:
		return "español"
	case FrFR:
		return "français"
	case DeDE:
		return "Deutsch"
	default:
		return string(c)
	}
}

func (c Code) String() string { return string(c) }
