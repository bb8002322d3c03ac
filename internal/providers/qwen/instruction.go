package qwen

import (
	"fmt"
	"strings"
)

type phrases struct {
	enhance    string
	style      string
	background string
	extra      string
	keep       string
	logo       string
	aspect     string
}

var instructionPhrases = map[string]phrases{
	"en": {
		enhance:    "Improve the lighting, sharpness and colour of this product photo.",
		style:      "Visual style: %s.",
		background: "Set the background to: %s.",
		extra:      "Additional instructions: %s.",
		keep:       "Keep the original product shape and natural proportions, no blur, no defects.",
		logo:       "Minimal flat vector logo, centered, plain background: %s",
		aspect:     "Compose for a %dx%d canvas.",
	},
	"id": {
		enhance:    "Perbaiki pencahayaan, ketajaman, dan warna foto produk ini.",
		style:      "Gaya visual: %s.",
		background: "Ganti/atur latar: %s.",
		extra:      "Instruksi tambahan: %s.",
		keep:       "Pertahankan bentuk produk asli, proporsi natural, tidak blur, tidak cacat.",
		logo:       "Logo vektor datar minimalis, di tengah, latar polos: %s",
		aspect:     "Komposisi menyesuaikan kanvas %dx%d.",
	},
}

// buildInstruction turns a request into the text prompt DashScope expects.
// Edit capabilities get an instruction around the user's prompt.
func buildInstruction(capability, locale, prompt string, params map[string]any, width, height int) string {
	ph, ok := instructionPhrases[strings.ToLower(strings.SplitN(locale, "-", 2)[0])]
	if !ok {
		ph = instructionPhrases["en"]
	}
	prompt = strings.TrimSpace(prompt)
	style := stringParam(params, "style")
	background := stringParam(params, "background")

	var parts []string
	switch capability {
	case "logo":
		return fmt.Sprintf(ph.logo, prompt)
	case "enhancement":
		parts = append(parts, ph.enhance)
	case "style-transfer":
		if style == "" {
			style = prompt
			prompt = ""
		}
	default:
		if style == "" && background == "" {
			return prompt
		}
		parts = append(parts, prompt)
	}
	if style != "" {
		parts = append(parts, fmt.Sprintf(ph.style, style))
	}
	if background != "" {
		parts = append(parts, fmt.Sprintf(ph.background, background))
	}
	if capability != "image" {
		if prompt != "" {
			parts = append(parts, fmt.Sprintf(ph.extra, prompt))
		}
		parts = append(parts, ph.keep)
	}
	if width > 0 && height > 0 {
		parts = append(parts, fmt.Sprintf(ph.aspect, width, height))
	}
	return strings.Join(parts, " ")
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return strings.TrimSpace(v)
}
