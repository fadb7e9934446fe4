package flow

import "time"

// Timing holds the inter-message delays for the scripted sequences. Tests
// use a zero Timing so sequences run without sleeping.
type Timing struct {
	// InitialDelay is the pause after /start before the greeting voice note.
	InitialDelay time.Duration
	// VideoDelay is the pause between the greeting and the intro video.
	VideoDelay time.Duration

	// TeaseDelay is the pause before the voice note answering the user's
	// first message.
	TeaseDelay time.Duration
	// QuestionDelay is the pause between that voice note and the call
	// question.
	QuestionDelay time.Duration

	// ApologyDelay is the pause before the voice note that precedes the
	// call link.
	ApologyDelay time.Duration
	// LinkDelay is the pause between that voice note and the link itself.
	LinkDelay time.Duration

	// PostCallVideoDelay is the pause between the dropped-call voice note
	// and the follow-up video.
	PostCallVideoDelay time.Duration
	// PostCallPixDelay is the pause between the video and the pix voice
	// note.
	PostCallPixDelay time.Duration
	// PostCallQuestionDelay is the pause before the payment question.
	PostCallQuestionDelay time.Duration

	// ActionPause is the short hold after showing a chat action so the
	// indicator is visible before the content lands.
	ActionPause time.Duration
	// TextPause separates consecutive text messages within one step.
	TextPause time.Duration
}

// DefaultTiming returns the production delay profile.
func DefaultTiming() Timing {
	return Timing{
		InitialDelay:          3 * time.Second,
		VideoDelay:            18 * time.Second,
		TeaseDelay:            8 * time.Second,
		QuestionDelay:         13 * time.Second,
		ApologyDelay:          12 * time.Second,
		LinkDelay:             14 * time.Second,
		PostCallVideoDelay:    20 * time.Second,
		PostCallPixDelay:      12 * time.Second,
		PostCallQuestionDelay: 10 * time.Second,
		ActionPause:           1 * time.Second,
		TextPause:             2 * time.Second,
	}
}
