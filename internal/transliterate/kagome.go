package transliterate

import (
	"fmt"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// KagomeSegmenter splits Japanese text into morphemes with the IPA dictionary.
type KagomeSegmenter struct {
	t *tokenizer.Tokenizer
}

func NewKagomeSegmenter() (*KagomeSegmenter, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("create tokenizer: %w", err)
	}
	return &KagomeSegmenter{t: t}, nil
}

func (s *KagomeSegmenter) Segment(text string) []Token {
	tokens := s.t.Tokenize(text)
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		reading, ok := tok.Reading()
		if !ok || reading == "*" {
			reading = ""
		}
		out = append(out, Token{Surface: tok.Surface, Reading: reading})
	}
	return out
}
