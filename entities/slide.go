package entities

// Slide is one extracted content unit and its generated artifacts.
// Number is 1-based and always equals the slide's position + 1.
type Slide struct {
	Number   int     `json:"slideNumber"`
	Content  string  `json:"content"`
	ImageURL string  `json:"imageUrl"`
	Script   string  `json:"script"`
	AudioURL *string `json:"audioUrl"`
	Duration float64 `json:"duration"`
	Fallback bool    `json:"fallback,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// NewSlideSkeleton builds a slide whose script and audio are still pending.
func NewSlideSkeleton(number int, content, imageURL string) Slide {
	pending := ""
	return Slide{
		Number:   number,
		Content:  content,
		ImageURL: imageURL,
		AudioURL: &pending,
	}
}

func (s Slide) HasAudio() bool {
	return s.AudioURL != nil && *s.AudioURL != ""
}

// AudioFailed reports the terminal per-slide state of a failed synthesis.
func (s Slide) AudioFailed() bool {
	return s.AudioURL == nil
}

// Processed reports whether the slide has a script and a final audio state.
func (s Slide) Processed() bool {
	return s.Script != "" && (s.HasAudio() || s.AudioFailed())
}
