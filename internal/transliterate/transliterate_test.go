package transliterate

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixedSegmenter []Token

func (f fixedSegmenter) Segment(string) []Token { return f }

func TestTransliterateStopsAtUntranscribableToken(t *testing.T) {
	tr := New(fixedSegmenter{
		{Surface: "東京", Reading: "トウキョウ"},
		{Surface: " "},
		{Surface: "sushi"},
		{Surface: "한국"},
		{Surface: "ねこ", Reading: "ネコ"},
	}, newLogger())
	if got := tr.Transliterate("ignored"); got != "とうきょうすし" {
		t.Fatalf("expected early exit output, got %q", got)
	}
}

func TestTransliteratePassesPunctuationThrough(t *testing.T) {
	tr := New(fixedSegmenter{
		{Surface: "ねこ", Reading: "ネコ"},
		{Surface: "、", Reading: "、"},
		{Surface: "いぬ"},
		{Surface: "☆"},
		{Surface: "ヵ"},
		{Surface: "ヶ"},
		{Surface: "。"},
	}, newLogger())
	if got := tr.Transliterate("ignored"); got != "ねこ、いぬ☆ゕゖ。" {
		t.Fatalf("expected punctuation kept and small kana converted, got %q", got)
	}
}

func TestTransliterateEmpty(t *testing.T) {
	tr := New(fixedSegmenter{{Surface: "x"}}, newLogger())
	if got := tr.Transliterate(""); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestKanaToRomaji(t *testing.T) {
	cases := map[string]string{
		"トウキョウ": "toukyou",
		"コーヒー":  "koohii",
		"きって":   "kitte",
		"マッチ":   "macchi",
		"しんぶん":  "shinbun",
		"きんえん":  "kin'en",
		"ほんや":   "hon'ya",
		"ジャズ":   "jazu",
	}
	for in, want := range cases {
		got, ok := kanaToRomaji(in)
		if !ok || got != want {
			t.Errorf("kanaToRomaji(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := kanaToRomaji("東京"); ok {
		t.Error("kanji must not romanize without a reading")
	}
}

func TestRomajiToHiragana(t *testing.T) {
	cases := map[string]string{
		"sushi":      "すし",
		"konnichiha": "こんにちは",
		"kin'en":     "きんえん",
		"hon'ya":     "ほんや",
		"kitte":      "きって",
		"matcha":     "まっちゃ",
		"macchi":     "まっち",
		"tokyo":      "ときょ",
		"Sushi":      "すし",
	}
	for in, want := range cases {
		if got := romajiToHiragana(in); got != want {
			t.Errorf("romajiToHiragana(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestKanaRoundTrip(t *testing.T) {
	for _, in := range []string{"ありがとう", "しゃしん", "がっこう", "でんわ", "きんようび", "ふぁいる"} {
		latin, ok := kanaToRomaji(in)
		if !ok {
			t.Fatalf("kanaToRomaji(%q) failed", in)
		}
		if got := romajiToHiragana(latin); got != in {
			t.Errorf("round trip %q -> %q -> %q", in, latin, got)
		}
	}
}

func TestKagomeTransliteration(t *testing.T) {
	seg, err := NewKagomeSegmenter()
	if err != nil {
		t.Fatalf("segmenter: %v", err)
	}
	tr := New(seg, newLogger())
	cases := map[string]string{
		"":      "",
		"こんにちは": "こんにちは",
		"東京":    "とうきょう",
		"sushi": "すし",
		"ｓｕｓｈｉ": "すし",
		"コーヒー":  "こおひい",
	}
	for in, want := range cases {
		if got := tr.Transliterate(in); got != want {
			t.Errorf("Transliterate(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestKagomeTransliterationKeepsGoingPastPunctuation(t *testing.T) {
	seg, err := NewKagomeSegmenter()
	if err != nil {
		t.Fatalf("segmenter: %v", err)
	}
	tr := New(seg, newLogger())
	cases := []struct{ in, want string }{
		{"こんにちは、元気ですか", "こんにちは、げんきですか"},
		{"東京。", "とうきょう。"},
	}
	for _, c := range cases {
		if got := tr.Transliterate(c.in); got != c.want {
			t.Errorf("Transliterate(%q) = %q; want %q", c.in, got, c.want)
		}
	}
}

func TestKagomeTransliterationIsDeterministic(t *testing.T) {
	seg, err := NewKagomeSegmenter()
	if err != nil {
		t.Fatal(err)
	}
	tr := New(seg, newLogger())
	first := tr.Transliterate("今日は東京へ行きます")
	if first == "" || strings.ContainsAny(first, "今日東京行") {
		t.Fatalf("unexpected transliteration %q", first)
	}
	for i := 0; i < 3; i++ {
		if got := tr.Transliterate("今日は東京へ行きます"); got != first {
			t.Fatalf("non-deterministic output %q vs %q", got, first)
		}
	}
}
