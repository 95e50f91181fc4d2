package submitter

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

// TCP is the newline-delimited submission adapter: one flag per line,
// one response line per flag in the same order, "<flag> <status>".
type TCP struct {
	addr    string
	timeout time.Duration
}

// NewTCP builds a TCP adapter dialing addr for every submission.
func NewTCP(addr string, timeout time.Duration) *TCP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TCP{addr: addr, timeout: timeout}
}

func (t *TCP) Submit(ctx context.Context, flags []string) ([]Result, error) {
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("dial submitter %s: %w", t.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(t.timeout))
	}

	writer := bufio.NewWriter(conn)
	for _, f := range flags {
		if _, err := fmt.Fprintln(writer, f); err != nil {
			return nil, fmt.Errorf("write flag to submitter: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush flags to submitter: %w", err)
	}

	reader := bufio.NewScanner(conn)
	results := make([]Result, 0, len(flags))
	for _, f := range flags {
		if !reader.Scan() {
			return nil, fmt.Errorf("submitter closed connection after %d/%d responses: %w", len(results), len(flags), reader.Err())
		}
		results = append(results, parseLine(f, reader.Text()))
	}
	return results, nil
}

// parseLine interprets a response line as "<status>" or "<flag> <status>",
// falling back to ERR if neither form matches a known code; the raw line
// is then logged at warning level for the operator to inspect.
func parseLine(flag, line string) Result {
	fields := strings.Fields(line)
	var status string
	switch len(fields) {
	case 1:
		status = fields[0]
	case 2:
		status = fields[1]
	default:
		status = ""
	}
	if !model.KnownStatus(status) {
		slog.Warn("submitter returned unknown status, recording ERR", "flag", flag, "line", line)
		status = model.StatusERR
	}
	return Result{Text: flag, Status: status}
}
