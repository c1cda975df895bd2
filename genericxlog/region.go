package genericxlog

import "strconv"

// findRegionIndex locates the region covering offset via binary search,
// mirroring the original's bsearch + regionOffsetCmp predicate: regions are
// sorted and gap-free, so there is always exactly one match for any offset
// in [0, BlockSize).
func findRegionIndex(s *pageSlot, offset uint16) int {
	lo, hi := 0, s.regionsCount-1
	for lo <= hi {
		mid := (lo + hi) / 2
		r := s.regions[mid]
		switch {
		case offset < r.dstOffset:
			hi = mid - 1
		case offset >= r.dstOffset+r.length:
			lo = mid + 1
		default:
			return mid
		}
	}
	panic("genericxlog: no region covers offset " + strconv.Itoa(int(offset)))
}

// memoryMove updates a slot's region map to reflect relocating length bytes
// from srcOffset to dstOffset within the working image, without touching
// the image bytes themselves (the caller does the actual copy). It builds a
// run of new regions tiling [dstOffset, dstOffset+length), then coalesces
// them against the regions immediately left and right of that span so that
// repeated shifts don't fragment the region count. On capacity overflow it
// falls back to a single identity region and sets overflow.
func memoryMove(s *pageSlot, dstOffset, srcOffset, length uint16) {
	var newRegions [MaxRegions]region
	newCount := 0

	curOffset := dstOffset
	curLength := length
	curSrc := srcOffset
	srcIdx := findRegionIndex(s, srcOffset)

	for curLength > 0 {
		sr := s.regions[srcIdx]
		shift := curSrc - sr.dstOffset
		nr := region{
			dstOffset: curOffset,
			srcOffset: sr.srcOffset + shift,
		}
		remain := sr.length - shift
		if remain < curLength {
			nr.length = remain
		} else {
			nr.length = curLength
		}
		newRegions[newCount] = nr

		curOffset += nr.length
		curSrc += nr.length
		curLength -= nr.length
		srcIdx++
		newCount++
	}

	// Left coalesce: find the region covering dstOffset-1 (or 0). Either
	// the new run abuts it exactly (shift==0), the new run is a natural
	// continuation of its source run (extend leftward), or it must be
	// truncated and the new regions inserted after it.
	leftQuery := uint16(0)
	if dstOffset > 0 {
		leftQuery = dstOffset - 1
	}
	leftIdx := findRegionIndex(s, leftQuery)
	leftRegion := s.regions[leftIdx]
	leftShift := dstOffset - leftRegion.dstOffset

	leftAdjacent := false
	var leftTruncLength uint16
	switch {
	case leftShift == 0:
		leftAdjacent = true
	case newRegions[0].srcOffset == leftRegion.srcOffset+leftShift:
		leftAdjacent = true
		newRegions[0].dstOffset -= leftShift
		newRegions[0].srcOffset -= leftShift
		newRegions[0].length += leftShift
	default:
		leftTruncLength = leftShift
	}
	spliceLeft := leftIdx
	if !leftAdjacent {
		spliceLeft = leftIdx + 1
	}

	// Right coalesce: mirror image of the left rule, against the region
	// covering dstOffset+length (or the page's last byte).
	rightQuery := uint16(BlockSize - 1)
	if dstOffset+length < BlockSize {
		rightQuery = dstOffset + length
	}
	rightIdx := findRegionIndex(s, rightQuery)
	rightRegion := s.regions[rightIdx]
	rightShift := (rightRegion.dstOffset + rightRegion.length) - (dstOffset + length)

	rightAdjacent := false
	last := newRegions[newCount-1]
	switch {
	case rightShift == 0:
		rightAdjacent = true
	case last.srcOffset+last.length+rightShift == rightRegion.srcOffset+rightRegion.length:
		rightAdjacent = true
		newRegions[newCount-1].length += rightShift
	case !leftAdjacent:
		// Both sides need a residual: the left side's residual stays in
		// place (truncated below), so the right side's residual must
		// travel with the new regions instead of staying at rightIdx,
		// since rightIdx itself will be fully subsumed by the splice.
		tail := rightRegion
		tail.srcOffset += tail.length - rightShift
		tail.dstOffset += tail.length - rightShift
		tail.length = rightShift
		newRegions[newCount] = tail
		newCount++
		rightAdjacent = true
	default:
		// Left side coalesced cleanly, so rightIdx's slot is still live:
		// truncate it in place to become the right residual.
		s.regions[rightIdx].srcOffset += s.regions[rightIdx].length - rightShift
		s.regions[rightIdx].dstOffset += s.regions[rightIdx].length - rightShift
		s.regions[rightIdx].length = rightShift
	}

	if !leftAdjacent {
		s.regions[leftIdx].length = leftTruncLength
	}
	spliceRight := rightIdx
	if rightAdjacent {
		spliceRight = rightIdx + 1
	}

	delta := newCount - (spliceRight - spliceLeft)
	if s.regionsCount+delta > MaxRegions {
		s.regions[0] = region{dstOffset: 0, srcOffset: 0, length: BlockSize}
		s.regionsCount = 1
		s.overflow = true
		return
	}

	copy(s.regions[spliceRight+delta:s.regionsCount+delta], s.regions[spliceRight:s.regionsCount])
	s.regionsCount += delta
	copy(s.regions[spliceLeft:spliceLeft+newCount], newRegions[:newCount])

	assertNoZeroLengthRegions(s)
}

// assertNoZeroLengthRegions is the invariant check memoryMove runs after
// every splice: a correct coalesce never leaves a zero-length region behind
// (invariant 4).
func assertNoZeroLengthRegions(s *pageSlot) {
	for i := 0; i < s.regionsCount; i++ {
		if s.regions[i].length == 0 {
			panic("genericxlog: zero-length region survived memmove splice")
		}
	}
}

