package emotion

import (
	"regexp"
	"strings"
)

// Tag is a coarse emotional tone of a message
type Tag string

const (
	Excited  Tag = "excited"
	Joking   Tag = "joking"
	Angry    Tag = "angry"
	Question Tag = "question"
	Neutral  Tag = "neutral"
)

// Tags lists every tag in rule order
var Tags = []Tag{Excited, Joking, Angry, Question, Neutral}

// emphatic marks that count as an exclamation in any of the supported scripts
var emphatic = []string{"!", "！", "‼", "⁉", "❗", "❕"}

// laughterScript are laughter markers of scripts without word boundaries
var laughterScript = []string{"笑", "ｗｗ", "ㅋㅋ", "ㅎㅎ", "哈哈", "呵呵"}

var laughterToken = regexp.MustCompile(`^(lol+|lmao+|rofl|lul|kek|xd+|w{2,}|(ha){2,}h?|(he){2,}h?)$`)

// hostility and confusion phrases, matched case-insensitively as substrings
var hostile = []string{
	"wtf", "what the hell", "what the fuck", "shut up", "stupid", "idiot",
	"i hate", "makes no sense", "are you kidding",
	"ふざけ", "意味わからん", "意味不明", "うざ", "は？",
	"뭐야", "짜증", "미쳤",
	"什么鬼", "搞什么", "烦死",
}

var questionMarks = []string{"?", "？"}

// Classify returns the tone of text. Rules are checked in a fixed order and
// the first match wins: exclamation, laughter, hostility, question, neutral.
func Classify(text string) Tag {
	lower := strings.ToLower(text)

	if containsAny(lower, emphatic) {
		return Excited
	}
	if hasLaughter(lower) {
		return Joking
	}
	if containsAny(lower, hostile) {
		return Angry
	}
	if containsAny(lower, questionMarks) {
		return Question
	}
	return Neutral
}

// Valid reports whether t is a known tag
func Valid(t Tag) bool {
	for _, known := range Tags {
		if t == known {
			return true
		}
	}
	return false
}

func hasLaughter(lower string) bool {
	if containsAny(lower, laughterScript) {
		return true
	}
	for _, token := range strings.FieldsFunc(lower, isSeparator) {
		if laughterToken.MatchString(token) {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
