package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

func handleComplete(client *Client, input *TicketInput, stdout io.Writer) error {
	if input.TicketID == "" {
		return errors.New("ticket_id required")
	}
	if !client.Healthy() {
		return fmt.Errorf("server unreachable; completion for %s not recorded", input.TicketID)
	}

	body, err := json.Marshal(input.CompletionRequest())
	if err != nil {
		return err
	}
	data, err := client.Post("/api/completions", body)
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}
