package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	assert.Equal(t, language.Indonesian, Match("id-ID"))
	assert.Equal(t, language.Indonesian, Match("id"))
	assert.Equal(t, language.English, Match("en-US"))
	assert.Equal(t, language.English, Match("fr"))
	assert.Equal(t, language.English, Match(""))
}

func TestLocalizedTexts(t *testing.T) {
	title, body := CompletedText("en", "logo")
	assert.Equal(t, "Your logo is ready", title)
	assert.Equal(t, "Your logo generation finished successfully.", body)

	title, body = CompletedText("id", "image")
	assert.Equal(t, "Hasil gambar Anda sudah siap", title)
	assert.Equal(t, "Pembuatan gambar Anda berhasil diselesaikan.", body)

	title, body = FailedText("id-ID", "video", "timeout")
	assert.Equal(t, "Hasil video Anda gagal dibuat", title)
	assert.Equal(t, "Pembuatan gagal: timeout", body)
}
