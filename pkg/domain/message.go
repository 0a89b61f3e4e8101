package domain

// When identifies the pytest phase that emitted a message.
type When string

// Phases in which errors and warnings are emitted.
const (
	WhenConfig  When = "config"
	WhenCollect When = "collect"
	WhenRuntest When = "runtest"
)

// Event type values.
const (
	EventErrorMessage   = "ErrorMessage"
	EventWarningMessage = "WarningMessage"
	EventTestItem       = "TestItem"
)

// ErrorMessage is an error emitted during discovery.
type ErrorMessage struct {
	Event          string `json:"event"`
	When           When   `json:"when"`
	Filename       string `json:"filename"`
	Lineno         int    `json:"lineno"`
	ExceptionType  string `json:"exception_type"`
	ExceptionValue string `json:"exception_value"`
}

// WarningMessage is a warning emitted during discovery.
type WarningMessage struct {
	Event    string `json:"event"`
	When     When   `json:"when"`
	Filename string `json:"filename"`
	Lineno   int    `json:"lineno"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}
