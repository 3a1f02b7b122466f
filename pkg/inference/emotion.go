package inference

import "strings"

// Emotion is a facial expression class.
type Emotion string

// Expression classes produced by emotion backends.
const (
	Neutral  Emotion = "neutral"
	Happy    Emotion = "happy"
	Sad      Emotion = "sad"
	Surprise Emotion = "surprise"
	Anger    Emotion = "anger"
	Fear     Emotion = "fear"
	Disgust  Emotion = "disgust"
)

// AllEmotions lists every supported class.
var AllEmotions = []Emotion{Neutral, Happy, Sad, Surprise, Anger, Fear, Disgust}

// String returns the class label.
func (e Emotion) String() string {
	return string(e)
}

// Valid reports whether e is a supported class.
func (e Emotion) Valid() bool {
	for _, known := range AllEmotions {
		if e == known {
			return true
		}
	}
	return false
}

// ParseEmotion maps a model label to an Emotion.
// Unknown labels map to Neutral with ok=false.
func ParseEmotion(label string) (Emotion, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "neutral", "calm":
		return Neutral, true
	case "happy", "happiness", "joy":
		return Happy, true
	case "sad", "sadness":
		return Sad, true
	case "surprise", "surprised":
		return Surprise, true
	case "anger", "angry":
		return Anger, true
	case "fear", "fearful", "scared":
		return Fear, true
	case "disgust", "disgusted", "contempt":
		return Disgust, true
	}
	return Neutral, false
}
