// Package limits holds size caps shared by the daemon and its client.
package limits

const (
	// JSON caps request and response payloads on the daemon socket (1MB)
	JSON = 1 << 20

	// ErrorBody caps how much of a failed response is read for its message
	ErrorBody = 1024

	// LogLine caps a single line read from a compose log stream
	LogLine = 1 << 20
)
