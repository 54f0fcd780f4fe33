// Package transliterate renders recognized Japanese text as hiragana. It is
// diagnostic output only.
package transliterate

import (
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Token is one segment of the input. Reading is the dictionary reading in
// kana, empty when the segmenter has none.
type Token struct {
	Surface string
	Reading string
}

type Segmenter interface {
	Segment(text string) []Token
}

type Transliterator struct {
	seg Segmenter
	log *slog.Logger
}

func New(seg Segmenter, log *slog.Logger) *Transliterator {
	return &Transliterator{seg: seg, log: log.With(slog.String("component", "transliterator"))}
}

// Transliterate segments text, romanizes each token and converts the romaji
// to hiragana. Punctuation and symbols are copied as they are. Processing
// stops at the first other token without a transcription and the output
// gathered so far is returned.
func (t *Transliterator) Transliterate(text string) string {
	if text == "" {
		return ""
	}
	text = width.Fold.String(text)

	var out strings.Builder
	for _, tok := range t.seg.Segment(text) {
		if strings.TrimFunc(tok.Surface, unicode.IsSpace) == "" {
			continue
		}
		if isPunctuation(tok.Surface) {
			out.WriteString(tok.Surface)
			continue
		}
		latin, ok := romanize(tok)
		if !ok {
			t.log.Debug("token has no transcription", slog.String("token", tok.Surface))
			break
		}
		out.WriteString(romajiToHiragana(latin))
	}
	return out.String()
}

func romanize(tok Token) (string, bool) {
	if tok.Reading != "" {
		if r, ok := kanaToRomaji(tok.Reading); ok {
			return r, true
		}
	}
	if r, ok := kanaToRomaji(tok.Surface); ok {
		return r, true
	}
	if isLatin(tok.Surface) {
		return strings.ToLower(tok.Surface), true
	}
	return "", false
}

func isPunctuation(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return s != ""
}

func isLatin(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '\'', r == '-':
		default:
			return false
		}
	}
	return true
}
