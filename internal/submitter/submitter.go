// Package submitter implements the submission handler: the 3-second
// sweep of unsubmitted flags, preemptive marking, chunking, and the two
// adapter variants that speak to the game server's flag-submission
// endpoint.
package submitter

import "context"

const maxChunkSize = 150

// Result pairs a submitted flag's text with the status code the
// upstream returned for it.
type Result struct {
	Text   string
	Status string
}

// Adapter is the submission contract: hand a batch of flag texts to the
// game server and get back one status per flag, in the fixed taxonomy
// (OK, DUP, OWN, OLD, INV, ERR).
type Adapter interface {
	Submit(ctx context.Context, flags []string) ([]Result, error)
}

// chunk splits flags into groups of at most maxChunkSize entries,
// preserving order within and across chunks.
func chunk(flags []string) [][]string {
	if len(flags) == 0 {
		return nil
	}
	var out [][]string
	for len(flags) > 0 {
		n := maxChunkSize
		if n > len(flags) {
			n = len(flags)
		}
		out = append(out, flags[:n])
		flags = flags[n:]
	}
	return out
}
