package notification

// Level classifies a Notice for display.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a short-lived message for the status bar.
type Notice struct {
	Level Level
	Text  string
}
