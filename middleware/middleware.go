package middleware

// DefaultStack returns the recommended production middleware stack:
// panic recovery, request ID injection and logging.
func DefaultStack(logger Logger) []Middleware {
	return []Middleware{
		RecoverWithLogger(logger),
		RequestID(),
		Logging(logger),
	}
}
