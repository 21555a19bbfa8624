package ui

// NoticeMsg asks the root model to show a transient status-bar notice.
// Level is "success", "error" or "info".
type NoticeMsg struct {
	Level string
	Text  string
}

// Success builds a success notice.
func Success(text string) NoticeMsg { return NoticeMsg{Level: "success", Text: text} }

// Failure builds an error notice.
func Failure(text string) NoticeMsg { return NoticeMsg{Level: "error", Text: text} }

// NavigateMsg asks the root model to open a route. The router checks
// access before switching views.
type NavigateMsg struct {
	Path string
}
