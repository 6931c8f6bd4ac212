package pipeline

import (
	"strings"
	"sync"
)

// PadInfo describes a dynamic pad from its first caps structure. Both
// fields are empty when the pad's caps could not be read.
type PadInfo struct {
	Name  string
	Media string
}

// SourcePadWanted accepts RTP pads carrying video. Pads without readable
// caps or without a media field are tried anyway; the link decides.
func SourcePadWanted(p PadInfo) bool {
	if p.Name == "" {
		return true
	}
	if p.Name != "application/x-rtp" {
		return false
	}
	return p.Media == "" || p.Media == "video"
}

// DecodedPadWanted accepts raw video pads, and pads whose caps are unknown.
func DecodedPadWanted(p PadInfo) bool {
	return p.Name == "" || strings.HasPrefix(p.Name, "video/")
}

// Continuation links the first suitable dynamic pad to a fixed sink. A
// rejected pad or a failed link leaves it armed for the next pad-added.
// Safe for concurrent use from streaming threads.
type Continuation struct {
	mu     sync.Mutex
	linked bool
}

// Offer calls link when the continuation is still armed and wanted is
// true. It reports whether this call made the link.
func (c *Continuation) Offer(wanted bool, link func() error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.linked || !wanted {
		return false, nil
	}
	if err := link(); err != nil {
		return false, err
	}
	c.linked = true
	return true, nil
}

// Linked reports whether a pad has been linked.
func (c *Continuation) Linked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linked
}
