// Package text loads narrative text, splits it into chunks sized for the
// synthesis model and normalises each chunk so it reads well aloud.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/divan/num2words"
)

const (
	baseTen     = 10
	baseHundred = 100

	// maxNumberForWords is the largest integer spelled out; larger values stay as digits.
	maxNumberForWords = 999999999

	// Four-digit integers in this range are read as years ("nineteen forty four").
	yearLow  = 1100
	yearHigh = 1999
	yearLen  = 4
)

// Regex patterns for text preprocessing.
const (
	urlRegexPattern          = `https?://\S+`
	emailRegexPattern        = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberRegexPattern       = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`
	referenceRegexPattern    = `\s*\[\d+\]`
	abbreviationRegexPattern = `\b(Mrs|Mr|Ms|Dr|St|Sgt|Lt|Capt|Col|Gen|Cpl|Pvt|Maj|Jr|Sr|Inc|Ltd|Corp)\.`
	repeatedPunctPattern     = `([!?,;:])[!?,;:]+`
	spaceBeforePunctPattern  = `\s+([.,!?;:])`
	whitespaceRegexPattern   = `\s+`
)

// Placeholder delimiters use private-use runes so that no other step matches them.
const (
	placeholderOpen  = "\uE000"
	placeholderClose = "\uE001"
	urlTrailingChars = `.,;:!?)"'`
)

var abbreviations = map[string]string{
	"Mr":   "Mister",
	"Mrs":  "Misses",
	"Ms":   "Miss",
	"Dr":   "Doctor",
	"St":   "Saint",
	"Sgt":  "Sergeant",
	"Lt":   "Lieutenant",
	"Capt": "Captain",
	"Col":  "Colonel",
	"Gen":  "General",
	"Cpl":  "Corporal",
	"Pvt":  "Private",
	"Maj":  "Major",
	"Jr":   "Junior",
	"Sr":   "Senior",
	"Inc":  "Incorporated",
	"Ltd":  "Limited",
	"Corp": "Corporation",
}

// Preprocessor normalises a chunk of text for speech synthesis.
type Preprocessor struct {
	urlPattern              *regexp.Regexp
	emailPattern            *regexp.Regexp
	numberPattern           *regexp.Regexp
	referencePattern        *regexp.Regexp
	abbreviationPattern     *regexp.Regexp
	repeatedPunctPattern    *regexp.Regexp
	spaceBeforePunctPattern *regexp.Regexp
	whitespacePattern       *regexp.Regexp
	typographyReplacer      *strings.Replacer
}

// NewPreprocessor creates a preprocessor with compiled patterns.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		urlPattern:              regexp.MustCompile(urlRegexPattern),
		emailPattern:            regexp.MustCompile(emailRegexPattern),
		numberPattern:           regexp.MustCompile(numberRegexPattern),
		referencePattern:        regexp.MustCompile(referenceRegexPattern),
		abbreviationPattern:     regexp.MustCompile(abbreviationRegexPattern),
		repeatedPunctPattern:    regexp.MustCompile(repeatedPunctPattern),
		spaceBeforePunctPattern: regexp.MustCompile(spaceBeforePunctPattern),
		whitespacePattern:       regexp.MustCompile(whitespaceRegexPattern),
		typographyReplacer: strings.NewReplacer(
			"—", " - ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize rewrites text into a form the model reads naturally.
func (p *Preprocessor) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	preserved, restore := p.preserveTokens(text)

	normalized := p.abbreviationPattern.ReplaceAllStringFunc(preserved, func(match string) string {
		return abbreviations[strings.TrimSuffix(match, ".")]
	})
	normalized = p.referencePattern.ReplaceAllString(normalized, "")
	normalized = p.numberPattern.ReplaceAllStringFunc(normalized, numberToWords)
	normalized = p.typographyReplacer.Replace(normalized)
	normalized = p.repeatedPunctPattern.ReplaceAllString(normalized, "$1")
	normalized = p.whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = p.spaceBeforePunctPattern.ReplaceAllString(normalized, "$1")
	normalized = strings.TrimSpace(normalized)

	return ensureSentenceEnding(restore.Replace(normalized))
}

// preserveTokens swaps URLs and emails for placeholders that contain no digits
// or punctuation, and returns the replacer that restores them.
func (p *Preprocessor) preserveTokens(text string) (string, *strings.Replacer) {
	var pairs []string

	protect := func(original string) string {
		placeholder := placeholderOpen + letterIndex(len(pairs)/2) + placeholderClose
		pairs = append(pairs, placeholder, original)

		return placeholder
	}

	text = p.urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		url := strings.TrimRight(match, urlTrailingChars)

		return protect(url) + match[len(url):]
	})
	text = p.emailPattern.ReplaceAllStringFunc(text, protect)

	return text, strings.NewReplacer(pairs...)
}

// letterIndex encodes n in base 26 using lowercase letters.
func letterIndex(n int) string {
	var builder strings.Builder

	for {
		builder.WriteByte(byte('a' + n%26))

		n /= 26
		if n == 0 {
			return builder.String()
		}
	}
}

func ensureSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	body := strings.TrimRight(text, `"')`)
	if body != "" {
		last, _ := utf8.DecodeLastRuneInString(body)
		switch last {
		case '.', '!', '?':
			return text
		}
	}

	return text + "."
}

// numberToWords spells out a matched number, keeping it as digits when it is
// too large to read. Four-digit years are read in pairs and fractional digits
// are read one by one after "point".
func numberToWords(match string) string {
	digits := strings.ReplaceAll(match, ",", "")
	integerPart, fraction, hasFraction := strings.Cut(digits, ".")

	value, err := strconv.Atoi(integerPart)
	if err != nil || value > maxNumberForWords {
		return match
	}

	var spoken string
	if !hasFraction && digits == match && len(integerPart) == yearLen && value >= yearLow && value <= yearHigh {
		spoken = yearToWords(value)
	} else {
		spoken = num2words.Convert(value)
	}

	if hasFraction {
		words := make([]string, 0, len(fraction))
		for _, digit := range fraction {
			words = append(words, num2words.Convert(int(digit-'0')))
		}

		spoken += " point " + strings.Join(words, " ")
	}

	return spoken
}

func yearToWords(year int) string {
	century := num2words.Convert(year / baseHundred)
	rest := year % baseHundred

	switch {
	case rest == 0:
		return century + " hundred"
	case rest < baseTen:
		return century + " oh " + num2words.Convert(rest)
	default:
		return century + " " + num2words.Convert(rest)
	}
}
