package translate

// supportedLanguages maps a language tag to its display name.
var supportedLanguages = map[string]string{
	"hi": "Hindi",
	"mr": "Marathi",
	"pa": "Punjabi",
	"ta": "Tamil",
	"te": "Telugu",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
}

// voicePreset is the speech voice used for a voice option.
type voicePreset struct {
	voice string
	speed float64
}

const defaultVoiceOption = 1

var voicePresets = map[int]voicePreset{
	1: {voice: "alloy", speed: 1.0},
	2: {voice: "nova", speed: 1.0},
	3: {voice: "alloy", speed: 0.8},
	4: {voice: "alloy", speed: 1.25},
}

func presetFor(option int) voicePreset {
	preset, ok := voicePresets[option]
	if !ok {
		return voicePresets[defaultVoiceOption]
	}

	return preset
}
