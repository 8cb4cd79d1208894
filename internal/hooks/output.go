package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lazypower/mempack/internal/engine"
)

// WriteEnvelope writes the envelope as a single JSON line.
func WriteEnvelope(w io.Writer, env *engine.Envelope) error {
	return json.NewEncoder(w).Encode(env)
}

// WriteContext writes the context block followed by a newline. An empty
// context writes nothing.
func WriteContext(w io.Writer, context string) error {
	if context == "" {
		return nil
	}
	_, err := fmt.Fprintln(w, context)
	return err
}

// ExitError logs to stderr and exits 0 (hooks must never fail the caller).
func ExitError(err error) {
	fmt.Fprintf(os.Stderr, "mempack hook: %v\n", err)
	os.Exit(0)
}
