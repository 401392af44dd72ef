// Package loader reads instruction traces for the timing model.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sarchlab/oocore/insts"
)

// DefaultBaseAddr is the address of the first instruction of a trace that
// does not give one.
const DefaultBaseAddr = 0x1000

// ErrEmptyTrace is returned for a trace without instructions.
var ErrEmptyTrace = errors.New("trace has no instructions")

// Trace is a decoded instruction trace. The instructions are templates:
// fetch clones them, so a trace can be replayed any number of times.
type Trace struct {
	// Name identifies the trace in reports.
	Name string
	// Insts holds the instructions in program order. The last one is
	// marked Last.
	Insts []*insts.Inst
}

// Len returns the number of instructions in the trace.
func (t *Trace) Len() int {
	return len(t.Insts)
}

// IndexOf returns the index of the first instruction at addr.
func (t *Trace) IndexOf(addr uint64) (int, bool) {
	for i, inst := range t.Insts {
		if inst.TargetVAddr == addr {
			return i, true
		}
	}
	return 0, false
}

// Load reads a trace file. The trace is named after the file.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(f, name)
}

// Parse reads a trace, one instruction per line:
//
//	[0xADDR:] mnemonic operands [# comment]
//
// Blank lines and comment lines are skipped. An instruction without an
// address follows the previous one by 4 bytes.
func Parse(r io.Reader, name string) (*Trace, error) {
	decoder := insts.NewDecoder()
	trace := &Trace{Name: name}

	addr := uint64(DefaultBaseAddr)
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if i := strings.IndexByte(line, ':'); i >= 0 {
			v, err := strconv.ParseUint(strings.TrimSpace(line[:i]), 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad address: %w", name, lineNo, err)
			}
			addr = v
			line = strings.TrimSpace(line[i+1:])
		}

		inst, err := decoder.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
		inst.TargetVAddr = addr
		inst.ProgramID = uint64(len(trace.Insts))
		trace.Insts = append(trace.Insts, inst)

		addr += 4
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace %s: %w", name, err)
	}

	if len(trace.Insts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTrace, name)
	}
	trace.Insts[len(trace.Insts)-1].Last = true

	return trace, nil
}
