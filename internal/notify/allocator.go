/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notify

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"net/netip"
	"sort"
	"sync"
	"time"
)

// ErrExhausted is returned once every usable address has been assigned.
var ErrExhausted = errors.New("notification address space exhausted")

// Range is an inclusive range of IPv4 addresses in host order.
type Range struct {
	First, Last uint32
}

// Size returns the number of addresses in the range.
func (r Range) Size() uint64 {
	if r.Last < r.First {
		return 0
	}
	return uint64(r.Last-r.First) + 1
}

func (r Range) contains(v uint32) bool {
	return v >= r.First && v <= r.Last
}

// ParseRange builds a range from two dotted-quad addresses.
func ParseRange(first, last string) Range {
	return Range{First: addrToUint(netip.MustParseAddr(first)), Last: addrToUint(netip.MustParseAddr(last))}
}

// MulticastRange is the IPv4 multicast block.
var MulticastRange = ParseRange("224.0.0.0", "239.255.255.255")

// ReservedRanges are the IANA assignments that must never be handed out.
var ReservedRanges = []Range{
	ParseRange("224.0.0.0", "224.0.1.255"),     // local network and internetwork control
	ParseRange("224.0.2.0", "224.0.255.255"),   // AD-HOC block I
	ParseRange("224.3.0.0", "224.4.255.255"),   // AD-HOC block II
	ParseRange("232.0.0.0", "232.255.255.255"), // source-specific multicast
	ParseRange("233.0.0.0", "233.255.255.255"), // GLOP
}

// maxRandomDraws bounds the rejection sampling before the allocator falls
// back to a scan.
const maxRandomDraws = 64

// Allocator hands out unique notification group addresses.
type Allocator struct {
	mu       sync.Mutex
	span     Range
	reserved []Range
	usable   uint64
	assigned map[uint32]struct{}
	rnd      *rand.Rand
}

// NewAllocator creates an allocator over the multicast block minus the
// reserved ranges.
func NewAllocator() *Allocator {
	return NewAllocatorWithRanges(MulticastRange, ReservedRanges, uint64(time.Now().UnixNano()))
}

// NewAllocatorWithRanges creates an allocator over span minus reserved.
// Reserved ranges are clipped to span; overlapping ranges are merged.
func NewAllocatorWithRanges(span Range, reserved []Range, seed uint64) *Allocator {
	clipped := make([]Range, 0, len(reserved))
	for _, r := range reserved {
		if r.Last < span.First || r.First > span.Last {
			continue
		}
		r.First = max(r.First, span.First)
		r.Last = min(r.Last, span.Last)
		clipped = append(clipped, r)
	}
	merged := mergeRanges(clipped)

	usable := span.Size()
	for _, r := range merged {
		usable -= r.Size()
	}

	return &Allocator{
		span:     span,
		reserved: merged,
		usable:   usable,
		assigned: make(map[uint32]struct{}),
		rnd:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func mergeRanges(in []Range) []Range {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].First < in[j].First })
	out := []Range{in[0]}
	for _, r := range in[1:] {
		last := &out[len(out)-1]
		if uint64(r.First) <= uint64(last.Last)+1 {
			last.Last = max(last.Last, r.Last)
			continue
		}
		out = append(out, r)
	}
	return out
}

// AllocatorStats describes the address space.
type AllocatorStats struct {
	Usable   uint64
	Assigned int
}

// Stats returns the usable size and the number of assigned addresses.
func (a *Allocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AllocatorStats{Usable: a.usable, Assigned: len(a.assigned)}
}

// Release returns addr to the pool. It reports whether addr was assigned.
func (a *Allocator) Release(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	v := addrToUint(addr)
	if _, ok := a.assigned[v]; !ok {
		return false
	}
	delete(a.assigned, v)
	return true
}

// Allocate returns a fresh address, or ErrExhausted.
//
// Candidates are drawn uniformly from the span and rejected when reserved
// or already assigned. After maxRandomDraws rejections the allocator scans
// forward from a random point, which always terminates because the count
// of assigned addresses is below the usable size.
func (a *Allocator) Allocate() (netip.Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if uint64(len(a.assigned)) >= a.usable {
		return netip.Addr{}, ErrExhausted
	}

	size := a.span.Size()
	for range maxRandomDraws {
		c := a.span.First + uint32(a.rnd.Uint64N(size))
		if a.free(c) {
			return a.take(c), nil
		}
	}

	start := a.rnd.Uint64N(size)
	for i := uint64(0); i < size; i++ {
		c := a.span.First + uint32((start+i)%size)
		if a.free(c) {
			return a.take(c), nil
		}
	}
	return netip.Addr{}, ErrExhausted
}

func (a *Allocator) free(c uint32) bool {
	for _, r := range a.reserved {
		if r.contains(c) {
			return false
		}
	}
	_, used := a.assigned[c]
	return !used
}

func (a *Allocator) take(c uint32) netip.Addr {
	a.assigned[c] = struct{}{}
	return uintToAddr(c)
}

// IsReserved reports whether addr falls in one of the default reserved
// ranges.
func IsReserved(addr netip.Addr) bool {
	if !addr.Is4() {
		return false
	}
	v := addrToUint(addr)
	for _, r := range ReservedRanges {
		if r.contains(v) {
			return true
		}
	}
	return false
}

func addrToUint(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uintToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
