package hooks

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lazypower/mempack/internal/engine"
)

func handleEnrich(client *Client, input *TicketInput, format string, stdout io.Writer) error {
	if !client.Healthy() {
		return writeDegraded(input, format, stdout)
	}

	body, err := json.Marshal(input.EnrichRequest())
	if err != nil {
		writeDegraded(input, format, stdout)
		return err
	}

	path := "/api/enrich"
	if format == FormatContext {
		path += "?format=context"
	}
	data, err := client.Post(path, body)
	if err != nil {
		writeDegraded(input, format, stdout)
		return err
	}

	if format == FormatContext {
		var resp struct {
			Context string `json:"context"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			writeDegraded(input, format, stdout)
			return fmt.Errorf("decode context: %w", err)
		}
		return WriteContext(stdout, resp.Context)
	}

	var env engine.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		writeDegraded(input, format, stdout)
		return fmt.Errorf("decode envelope: %w", err)
	}
	return WriteEnvelope(stdout, &env)
}

// writeDegraded emits what a caller gets with no history: an empty envelope
// for the locally resolved feature, or no context at all.
func writeDegraded(input *TicketInput, format string, stdout io.Writer) error {
	if format == FormatContext {
		return nil
	}
	req := input.EnrichRequest()
	files := append(append([]string{}, req.Files...), engine.FilesFromText(req.Description)...)
	return WriteEnvelope(stdout, engine.EmptyEnvelope(engine.Resolve(req.FeatureHint, files)))
}
