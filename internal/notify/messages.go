package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Supported lists the locales notifications are written in. The first entry
// is the fallback.
var Supported = []language.Tag{language.English, language.Indonesian}

var matcher = language.NewMatcher(Supported)

const (
	keyCompletedTitle = "Your %s is ready"
	keyCompletedBody  = "Your %s generation finished successfully."
	keyFailedTitle    = "Your %s could not be generated"
	keyFailedBody     = "Generation failed: %s"
)

var kindLabels = map[language.Tag]map[string]string{
	language.Indonesian: {
		"image":              "gambar",
		"video":              "video",
		"enhancement":        "peningkatan foto",
		"training":           "pelatihan model",
		"logo":               "logo",
		"background-removal": "penghapusan latar",
		"style-transfer":     "transfer gaya",
	},
}

func init() {
	id := language.Indonesian
	_ = message.SetString(id, keyCompletedTitle, "Hasil %s Anda sudah siap")
	_ = message.SetString(id, keyCompletedBody, "Pembuatan %s Anda berhasil diselesaikan.")
	_ = message.SetString(id, keyFailedTitle, "Hasil %s Anda gagal dibuat")
	_ = message.SetString(id, keyFailedBody, "Pembuatan gagal: %s")
}

// Match resolves a locale string such as "id-ID" to a supported tag.
func Match(locale string) language.Tag {
	if locale == "" {
		return Supported[0]
	}
	_, idx := language.MatchStrings(matcher, locale)
	return Supported[idx]
}

func label(tag language.Tag, kind string) string {
	if l, ok := kindLabels[tag][kind]; ok {
		return l
	}
	return kind
}

// CompletedText returns the title and body of a completion notification.
func CompletedText(locale, kind string) (string, string) {
	tag := Match(locale)
	p := message.NewPrinter(tag)
	l := label(tag, kind)
	return p.Sprintf(keyCompletedTitle, l), p.Sprintf(keyCompletedBody, l)
}

// FailedText returns the title and body of a terminal failure notification.
func FailedText(locale, kind, reason string) (string, string) {
	tag := Match(locale)
	p := message.NewPrinter(tag)
	return p.Sprintf(keyFailedTitle, label(tag, kind)), p.Sprintf(keyFailedBody, reason)
}
