package httpapi

// Config defines the status API settings.
type Config struct {
	Addr     string
	BasePath string
	// HistorySize bounds the events kept for Last-Event-ID replay.
	HistorySize int
}
