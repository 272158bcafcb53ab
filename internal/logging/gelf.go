package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfHandler returns a JSON handler that ships each record to a Graylog
// GELF UDP input at addr. The returned closer releases the socket.
func NewGelfHandler(addr, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("gelf writer %s: %w", addr, err)
	}
	w.Facility = ScopeName
	return slog.NewJSONHandler(w, HandlerOptions(level)), w, nil
}
