package hooks

import (
	"encoding/json"
	"fmt"
	"io"
)

// Output formats for the enrich event.
const (
	FormatJSON    = "json"
	FormatContext = "context"
)

// Handle runs one hook event and never fails the caller: errors are written
// to stderr and the process exits 0.
func Handle(client *Client, event, format string, stdin io.Reader, stdout io.Writer) {
	if err := Run(client, event, format, stdin, stdout); err != nil {
		ExitError(err)
	}
}

// Run reads a ticket from stdin and dispatches on event. Enrichment always
// writes an envelope (empty when the server is down or the input is bad);
// the error reports why it degraded.
func Run(client *Client, event, format string, stdin io.Reader, stdout io.Writer) error {
	var input TicketInput
	decodeErr := json.NewDecoder(stdin).Decode(&input)
	if decodeErr == io.EOF {
		decodeErr = nil
	}

	switch event {
	case "enrich":
		if decodeErr != nil {
			writeDegraded(&TicketInput{}, format, stdout)
			return fmt.Errorf("decode stdin: %w", decodeErr)
		}
		return handleEnrich(client, &input, format, stdout)
	case "complete":
		if decodeErr != nil {
			return fmt.Errorf("decode stdin: %w", decodeErr)
		}
		return handleComplete(client, &input, stdout)
	default:
		return fmt.Errorf("unknown hook event: %s", event)
	}
}
