package transliterate

import (
	"sort"
	"strings"
)

var monographs = map[rune]string{
	'あ': "a", 'い': "i", 'う': "u", 'え': "e", 'お': "o",
	'か': "ka", 'き': "ki", 'く': "ku", 'け': "ke", 'こ': "ko",
	'さ': "sa", 'し': "shi", 'す': "su", 'せ': "se", 'そ': "so",
	'た': "ta", 'ち': "chi", 'つ': "tsu", 'て': "te", 'と': "to",
	'な': "na", 'に': "ni", 'ぬ': "nu", 'ね': "ne", 'の': "no",
	'は': "ha", 'ひ': "hi", 'ふ': "fu", 'へ': "he", 'ほ': "ho",
	'ま': "ma", 'み': "mi", 'む': "mu", 'め': "me", 'も': "mo",
	'や': "ya", 'ゆ': "yu", 'よ': "yo",
	'ら': "ra", 'り': "ri", 'る': "ru", 'れ': "re", 'ろ': "ro",
	'わ': "wa", 'ゐ': "wi", 'ゑ': "we", 'を': "wo",
	'が': "ga", 'ぎ': "gi", 'ぐ': "gu", 'げ': "ge", 'ご': "go",
	'ざ': "za", 'じ': "ji", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'だ': "da", 'ぢ': "di", 'づ': "du", 'で': "de", 'ど': "do",
	'ば': "ba", 'び': "bi", 'ぶ': "bu", 'べ': "be", 'ぼ': "bo",
	'ぱ': "pa", 'ぴ': "pi", 'ぷ': "pu", 'ぺ': "pe", 'ぽ': "po",
	'ゔ': "vu",
	'ぁ': "xa", 'ぃ': "xi", 'ぅ': "xu", 'ぇ': "xe", 'ぉ': "xo",
	'ゃ': "xya", 'ゅ': "xyu", 'ょ': "xyo", 'ゎ': "xwa",
	'ゕ': "xka", 'ゖ': "xke",
}

var digraphs = map[string]string{
	"きゃ": "kya", "きゅ": "kyu", "きょ": "kyo",
	"しゃ": "sha", "しゅ": "shu", "しぇ": "she", "しょ": "sho",
	"ちゃ": "cha", "ちゅ": "chu", "ちぇ": "che", "ちょ": "cho",
	"にゃ": "nya", "にゅ": "nyu", "にょ": "nyo",
	"ひゃ": "hya", "ひゅ": "hyu", "ひょ": "hyo",
	"みゃ": "mya", "みゅ": "myu", "みょ": "myo",
	"りゃ": "rya", "りゅ": "ryu", "りょ": "ryo",
	"ぎゃ": "gya", "ぎゅ": "gyu", "ぎょ": "gyo",
	"じゃ": "ja", "じゅ": "ju", "じぇ": "je", "じょ": "jo",
	"ぢゃ": "dya", "ぢゅ": "dyu", "ぢょ": "dyo",
	"びゃ": "bya", "びゅ": "byu", "びょ": "byo",
	"ぴゃ": "pya", "ぴゅ": "pyu", "ぴょ": "pyo",
	"ふぁ": "fa", "ふぃ": "fi", "ふぇ": "fe", "ふぉ": "fo",
	"ゔぁ": "va", "ゔぃ": "vi", "ゔぇ": "ve", "ゔぉ": "vo",
}

// katakanaToHiragana shifts the katakana block onto hiragana; other runes
// pass through.
func katakanaToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - 0x60
		}
		return r
	}, s)
}

// kanaToRomaji romanizes kana. It fails on any rune that is not kana.
func kanaToRomaji(s string) (string, bool) {
	runes := []rune(katakanaToHiragana(s))
	if len(runes) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(runes))
	sokuon := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case 'っ':
			sokuon = true
			continue
		case 'ー':
			parts = append(parts, lastVowel(parts))
			continue
		case 'ん':
			parts = append(parts, "n")
			continue
		}

		var syllable string
		if i+1 < len(runes) {
			if d, ok := digraphs[string(runes[i:i+2])]; ok {
				syllable = d
				i++
			}
		}
		if syllable == "" {
			m, ok := monographs[r]
			if !ok {
				return "", false
			}
			syllable = m
		}
		if sokuon {
			syllable = geminate(syllable)
			sokuon = false
		}
		parts = append(parts, syllable)
	}
	if sokuon {
		parts = append(parts, "xtsu")
	}

	var out strings.Builder
	for i, p := range parts {
		out.WriteString(p)
		if p == "n" && i+1 < len(parts) && startsWithVowelOrY(parts[i+1]) {
			out.WriteByte('\'')
		}
	}
	return out.String(), true
}

func geminate(syllable string) string {
	if syllable == "" || isVowel(syllable[0]) || syllable[0] == 'n' || syllable[0] == 'x' {
		return "xtsu" + syllable
	}
	return syllable[:1] + syllable
}

func lastVowel(parts []string) string {
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		for j := len(p) - 1; j >= 0; j-- {
			if isVowel(p[j]) {
				return string(p[j])
			}
		}
	}
	return "-"
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'i', 'u', 'e', 'o':
		return true
	}
	return false
}

func startsWithVowelOrY(s string) bool {
	return s != "" && (isVowel(s[0]) || s[0] == 'y')
}

// romajiIndex maps romaji spellings to hiragana, longest first.
var romajiIndex, romajiKeys = buildRomajiIndex()

func buildRomajiIndex() (map[string]string, []string) {
	index := make(map[string]string, len(monographs)+len(digraphs)+16)
	for kana, roman := range monographs {
		index[roman] = string(kana)
	}
	for kana, roman := range digraphs {
		index[roman] = kana
	}
	for roman, kana := range map[string]string{
		"si": "し", "ti": "ち", "tu": "つ", "hu": "ふ", "zi": "じ",
		"sya": "しゃ", "syu": "しゅ", "syo": "しょ",
		"tya": "ちゃ", "tyu": "ちゅ", "tyo": "ちょ",
		"jya": "じゃ", "jyu": "じゅ", "jyo": "じょ",
		"xtsu": "っ", "xtu": "っ", "-": "ー",
	} {
		index[roman] = kana
	}
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return index, keys
}

// romajiToHiragana converts romaji greedily. Unknown characters pass through.
func romajiToHiragana(s string) string {
	s = strings.ToLower(s)
	var out strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c == 'n' {
			switch {
			case i+1 == len(s):
				out.WriteString("ん")
				i++
				continue
			case s[i+1] == '\'':
				out.WriteString("ん")
				i += 2
				continue
			case !isVowel(s[i+1]) && s[i+1] != 'y':
				out.WriteString("ん")
				i++
				continue
			}
		}
		if i+1 < len(s) && c == s[i+1] && isConsonant(c) && c != 'n' {
			out.WriteString("っ")
			i++
			continue
		}
		if c == 't' && strings.HasPrefix(s[i+1:], "ch") {
			out.WriteString("っ")
			i++
			continue
		}
		matched := false
		for _, k := range romajiKeys {
			if strings.HasPrefix(s[i:], k) {
				out.WriteString(romajiIndex[k])
				i += len(k)
				matched = true
				break
			}
		}
		if !matched {
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

func isConsonant(c byte) bool {
	return c >= 'a' && c <= 'z' && !isVowel(c)
}
