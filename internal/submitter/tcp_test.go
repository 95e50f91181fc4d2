package submitter

import (
	"testing"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

func TestParseLineSingleField(t *testing.T) {
	got := parseLine("FLAG{x}", "OK")
	if got.Status != model.StatusOK || got.Text != "FLAG{x}" {
		t.Fatalf("parseLine = %+v, want {FLAG{x} OK}", got)
	}
}

func TestParseLineTwoFields(t *testing.T) {
	got := parseLine("FLAG{x}", "FLAG{x} DUP")
	if got.Status != model.StatusDUP {
		t.Fatalf("parseLine = %+v, want status DUP", got)
	}
}

func TestParseLineUnknownStatusFallsBackToERR(t *testing.T) {
	got := parseLine("FLAG{x}", "bogus status here")
	if got.Status != model.StatusERR {
		t.Fatalf("parseLine = %+v, want status ERR", got)
	}
}

func TestParseLineEmpty(t *testing.T) {
	got := parseLine("FLAG{x}", "")
	if got.Status != model.StatusERR {
		t.Fatalf("parseLine(empty) = %+v, want status ERR", got)
	}
}
