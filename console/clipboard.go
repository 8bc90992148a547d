package console

import "github.com/atotto/clipboard"

// Clipboard receives copied payloads.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// ClipboardFunc adapts a function to Clipboard.
type ClipboardFunc func(text string) error

func (f ClipboardFunc) WriteAll(text string) error {
	return f(text)
}
