package models

// AnswerType discriminates the final response payload.
type AnswerType string

const (
	AnswerText  AnswerType = "text"
	AnswerImage AnswerType = "image"
)

// Answer is the orchestrator's final result for one question. Image
// answers carry the raw PNG bytes; Text holds the payload that gets
// persisted and token-counted in both cases.
type Answer struct {
	Type AnswerType
	Text string
	PNG  []byte
}

// TextAnswer wraps a plain textual answer.
func TextAnswer(text string) *Answer {
	return &Answer{Type: AnswerText, Text: text}
}

// ImageAnswer wraps a rendered PNG; text is the encoded form used for
// persistence and token accounting.
func ImageAnswer(png []byte, encoded string) *Answer {
	return &Answer{Type: AnswerImage, Text: encoded, PNG: png}
}
