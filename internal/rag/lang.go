package rag

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// langSampleChars bounds the text handed to the language identifier; the
// opening of a page is plenty for a reliable call.
const langSampleChars = 20_000

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

func languageDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		languages := []lingua.Language{
			lingua.English, lingua.French, lingua.German, lingua.Spanish,
			lingua.Italian, lingua.Portuguese, lingua.Dutch, lingua.Russian,
			lingua.Chinese, lingua.Japanese, lingua.Korean, lingua.Arabic,
			lingua.Turkish, lingua.Polish, lingua.Swedish,
		}
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build()
	})
	return detector
}

// DetectLanguage identifies the dominant language of text, returning its
// lowercased ISO 639-1 code and a confidence in [0,1]. Empty or
// undetectable input yields ("", 0).
func DetectLanguage(text string) (string, float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0
	}
	if len(text) > langSampleChars {
		text = text[:langSampleChars]
	}

	values := languageDetector().ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return "", 0
	}
	top := values[0]
	code := strings.ToLower(top.Language().IsoCode639_1().String())
	return code, top.Value()
}
