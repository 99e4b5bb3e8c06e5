// Package language maps human language names to the BCP-47 codes accepted by
// the Live API speech config.
package language

import "strings"

var bcp47 = map[string]string{
	// English variations
	"english":             "en-US",
	"en":                  "en-US",
	"eng":                 "en-US",
	"english (us)":        "en-US",
	"english (uk)":        "en-GB",
	"english (australia)": "en-AU",
	"english (india)":     "en-IN",
	"en-us":               "en-US",
	"en-gb":               "en-GB",
	"en-au":               "en-AU",
	"en-in":               "en-IN",

	// Hindi
	"hindi":         "hi-IN",
	"hi":            "hi-IN",
	"hin":           "hi-IN",
	"hindi (india)": "hi-IN",
	"hi-in":         "hi-IN",

	// Telugu
	"telugu":         "te-IN",
	"te":             "te-IN",
	"tel":            "te-IN",
	"telugu (india)": "te-IN",
	"te-in":          "te-IN",

	// Tamil
	"tamil":         "ta-IN",
	"ta":            "ta-IN",
	"tam":           "ta-IN",
	"tamil (india)": "ta-IN",
	"ta-in":         "ta-IN",

	// Bengali
	"bengali":         "bn-IN",
	"bn":              "bn-IN",
	"ben":             "bn-IN",
	"bengali (india)": "bn-IN",
	"bn-in":           "bn-IN",

	// Marathi
	"marathi":         "mr-IN",
	"mr":              "mr-IN",
	"mar":             "mr-IN",
	"marathi (india)": "mr-IN",
	"mr-in":           "mr-IN",

	// Gujarati
	"gujarati":         "gu-IN",
	"gu":               "gu-IN",
	"guj":              "gu-IN",
	"gujarati (india)": "gu-IN",
	"gu-in":            "gu-IN",

	// Kannada
	"kannada":         "kn-IN",
	"kn":              "kn-IN",
	"kan":             "kn-IN",
	"kannada (india)": "kn-IN",
	"kn-in":           "kn-IN",

	// Malayalam
	"malayalam":         "ml-IN",
	"ml":                "ml-IN",
	"mal":               "ml-IN",
	"malayalam (india)": "ml-IN",
	"ml-in":             "ml-IN",

	// Spanish
	"spanish":         "es-ES",
	"es":              "es-ES",
	"esp":             "es-ES",
	"spanish (spain)": "es-ES",
	"spanish (us)":    "es-US",
	"es-es":           "es-ES",
	"es-us":           "es-US",

	// French
	"french":          "fr-FR",
	"fr":              "fr-FR",
	"fre":             "fr-FR",
	"french (france)": "fr-FR",
	"french (canada)": "fr-CA",
	"fr-fr":           "fr-FR",
	"fr-ca":           "fr-CA",

	// German
	"german":           "de-DE",
	"de":               "de-DE",
	"ger":              "de-DE",
	"german (germany)": "de-DE",
	"de-de":            "de-DE",
}

// ToBCP47 maps a language name to a supported BCP-47 code, case-insensitively.
// Unknown or empty input defaults to en-US.
func ToBCP47(language string) string {
	if language == "" {
		return "en-US"
	}
	if code, ok := bcp47[strings.ToLower(strings.TrimSpace(language))]; ok {
		return code
	}
	return "en-US"
}
