// Package transport moves raw bytes between the host and the device. It has
// no knowledge of the protocol beyond "read a header, then the rest".
package transport

// Channel is an exclusively owned byte channel. Read returns (0, nil) when
// its timeout passes without data, as go.bug.st/serial does.
type Channel interface {
	Open() error
	Close() error
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
}
