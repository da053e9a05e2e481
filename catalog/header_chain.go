package catalog

import (
	"encoding/binary"

	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/storage"
)

// Header pages form singly linked chains so that a header can outgrow one page.
//
// Layout of every chain page:
// Next (4) | Used (4) | payload
//
// Next is the following page of the chain or -1. Used is the number of payload bytes on this page; pages
// at the tail of a chain whose header shrank carry Used = 0 and are kept for later growth.
const (
	chainOffsetNext  = 0
	chainOffsetUsed  = 4
	chainHeaderSize  = 8
	chainPayloadSize = common.PageSize - chainHeaderSize
	chainEnd         = common.NoPage
	maxChainLength   = storage.MaxPages
)

// pageAllocator hands out zero-filled pages for chains that need to grow.
type pageAllocator func() (common.PageNum, error)

// readChain follows the chain starting at first and returns the concatenated payload together with every
// page of the chain.
func readChain(bp *storage.BufferPool, first common.PageNum) ([]byte, []common.PageNum, error) {
	var payload []byte
	var pages []common.PageNum
	visited := make(map[common.PageNum]struct{})

	for pageNum := first; pageNum != chainEnd; {
		if _, seen := visited[pageNum]; seen || len(pages) >= maxChainLength {
			return nil, nil, common.NewError(common.CorruptHeaderError, "header chain from page %d loops at page %d", first, pageNum)
		}
		visited[pageNum] = struct{}{}

		h, err := bp.PinPage(pageNum)
		if err != nil {
			return nil, nil, err
		}
		next := common.PageNum(int32(binary.LittleEndian.Uint32(h.Data[chainOffsetNext:])))
		used := int(binary.LittleEndian.Uint32(h.Data[chainOffsetUsed:]))
		if used > chainPayloadSize {
			_ = bp.UnpinPage(h)
			return nil, nil, common.NewError(common.CorruptHeaderError, "header page %d claims %d payload bytes", pageNum, used)
		}
		payload = append(payload, h.Data[chainHeaderSize:chainHeaderSize+used]...)
		pages = append(pages, pageNum)
		if err := bp.UnpinPage(h); err != nil {
			return nil, nil, err
		}
		pageNum = next
	}
	return payload, pages, nil
}

// chainPagesNeeded returns how many chain pages a payload of n bytes occupies.
func chainPagesNeeded(n int) int {
	if n == 0 {
		return 1
	}
	return (n + chainPayloadSize - 1) / chainPayloadSize
}

// writeChain stores payload across pages, allocating more pages with alloc when the chain is too short.
// Surplus pages stay linked with an empty payload. It returns the possibly extended chain.
func writeChain(bp *storage.BufferPool, pages []common.PageNum, payload []byte, alloc pageAllocator) ([]common.PageNum, error) {
	common.Assert(len(pages) > 0, "a header chain needs a first page")
	for len(pages) < chainPagesNeeded(len(payload)) {
		p, err := alloc()
		if err != nil {
			return pages, err
		}
		pages = append(pages, p)
	}

	for i, pageNum := range pages {
		next := chainEnd
		if i+1 < len(pages) {
			next = pages[i+1]
		}
		chunk := payload
		if len(chunk) > chainPayloadSize {
			chunk = chunk[:chainPayloadSize]
		}
		payload = payload[len(chunk):]

		h, err := bp.PinPage(pageNum)
		if err != nil {
			return pages, err
		}
		binary.LittleEndian.PutUint32(h.Data[chainOffsetNext:], uint32(int32(next)))
		binary.LittleEndian.PutUint32(h.Data[chainOffsetUsed:], uint32(len(chunk)))
		n := copy(h.Data[chainHeaderSize:], chunk)
		common.ZeroBytes(h.Data[chainHeaderSize+n:])
		if err := bp.MarkDirty(h); err != nil {
			_ = bp.UnpinPage(h)
			return pages, err
		}
		if err := bp.UnpinPage(h); err != nil {
			return pages, err
		}
	}
	return pages, nil
}

// isBlankPage reports whether pageNum has never held a header: a zero-filled page.
func isBlankPage(bp *storage.BufferPool, pageNum common.PageNum) (bool, error) {
	h, err := bp.PinPage(pageNum)
	if err != nil {
		return false, err
	}
	blank := true
	for _, b := range h.Data {
		if b != 0 {
			blank = false
			break
		}
	}
	return blank, bp.UnpinPage(h)
}
