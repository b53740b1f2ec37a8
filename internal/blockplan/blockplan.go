// Package blockplan computes the block count and byte ranges for a
// block-blob upload (C4). The partition arithmetic is grounded in
// original_source/AzStorage.c's curl_writebytes_block_retry_threaded,
// which divides datasize by nblocks and hands the first
// datasize%nblocks blocks one extra byte each; the same remainder-first
// distribution is used here and again in internal/download for the
// symmetric read-side partitioning. The separation of "compute the plan"
// from "execute the plan" mirrors the naming of rclone's fs/chunksize
// package (referenced from backend/pikpak/multipart.go).
package blockplan

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/azstorex/azstorage/internal/xerrors"
)

const (
	// MinBlock is the minimum bytes-per-block below which parallelism
	// does not pay, per spec.md §4.4.
	MinBlock = 32 * 1024 * 1024
	// MaxBlock is the maximum bytes a single block may carry.
	MaxBlock = 4000 * 1024 * 1024
	// MaxBlocks is the maximum number of blocks a blob may be split into.
	MaxBlocks = 50000
)

// Block describes one planned block: its zero-based index, its byte
// offset within the payload, its length, and its committed block id.
type Block struct {
	Index  int
	Offset int64
	Length int64
	ID     string
}

// Plan is the full block-level upload plan (C4's output), the "Block
// Plan" of the data model: block count, nominal/remainder sizing, and the
// ordered block ids that must be committed in plan order.
type Plan struct {
	Blocks []Block
}

// NumBlocks reports the block count N.
func (p Plan) NumBlocks() int { return len(p.Blocks) }

// IDs returns the ordered block ids, matching the order COMMIT lists them in.
func (p Plan) IDs() []string {
	ids := make([]string, len(p.Blocks))
	for i, b := range p.Blocks {
		ids[i] = b.ID
	}
	return ids
}

// Compute builds a Plan for nBytes of payload, nThreads worker budget,
// and an optional maxBytesPerBlock override (0 means "use MaxBlock").
// Implements the five-step algorithm of spec.md §4.4.
func Compute(nBytes int64, nThreads int, maxBytesPerBlock int64) (Plan, error) {
	if nThreads < 1 {
		nThreads = 1
	}
	blockCeiling := int64(MaxBlock)
	if maxBytesPerBlock > 0 && maxBytesPerBlock < blockCeiling {
		blockCeiling = maxBytesPerBlock
	}

	// Step 1.
	n := ceilDiv(nBytes, blockCeiling)
	if n < 1 {
		n = 1
	}

	// Step 2.
	if n < int64(nThreads) {
		n = ceilDiv(nBytes, MinBlock)
		if n < 1 {
			n = 1
		}
		if n > int64(nThreads) {
			n = int64(nThreads)
		}
	}

	// Step 3.
	if n > MaxBlocks {
		return Plan{}, &xerrors.PayloadTooLargeError{
			Context:   xerrors.Context{Op: "blockplan.Compute"},
			NumBytes:  nBytes,
			NumBlocks: n,
			MaxBlocks: MaxBlocks,
		}
	}

	return buildPlan(nBytes, int(n)), nil
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// buildPlan performs steps 4–5: near-equal partitioning (remainder bytes
// go to the first n_bytes mod N blocks) and deterministic, lexically-sortable
// block id assignment.
func buildPlan(nBytes int64, n int) Plan {
	if n < 1 {
		n = 1
	}
	base := nBytes / int64(n)
	remainder := nBytes % int64(n)
	width := idWidth(n)

	blocks := make([]Block, n)
	var offset int64
	for i := 0; i < n; i++ {
		length := base
		if int64(i) < remainder {
			length++
		}
		blocks[i] = Block{
			Index:  i,
			Offset: offset,
			Length: length,
			ID:     BlockID(i, width),
		}
		offset += length
	}
	return Plan{Blocks: blocks}
}

// idWidth returns ceil(log10(n)), the zero-pad width needed so that
// lexical ordering of the decimal strings matches numeric ordering for
// indices 0..n-1.
func idWidth(n int) int {
	if n <= 1 {
		return 1
	}
	width := 0
	for v := n - 1; v > 0; v /= 10 {
		width++
	}
	if width == 0 {
		width = 1
	}
	return width
}

// BlockID computes the base64 block id for index i given a zero-pad width,
// per spec.md §3: "Base64 encoding of the zero-padded decimal string of
// index i, padded to ceil(log10(N)) digits".
func BlockID(i int, width int) string {
	decimal := strconv.Itoa(i)
	if len(decimal) < width {
		decimal = strings.Repeat("0", width-len(decimal)) + decimal
	}
	return base64.StdEncoding.EncodeToString([]byte(decimal))
}

// String renders a Plan for debugging/logging.
func (p Plan) String() string {
	return fmt.Sprintf("Plan{blocks=%d}", len(p.Blocks))
}
