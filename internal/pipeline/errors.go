package pipeline

// ClientInputError rejects a request before any work is done.
type ClientInputError struct {
	Msg string
}

func (e *ClientInputError) Error() string { return e.Msg }

// ErrEmptyText is returned for empty or whitespace-only report text.
var ErrEmptyText = &ClientInputError{Msg: "empty text submitted"}

// Placeholder texts stored in place of failed model output.
const (
	AnswerFailedText = "Fehler bei der Beantwortung der Frage."
	ReportFailedText = "Der Abschlussbericht konnte nicht erstellt werden."
)
