package genericxlog

// encode walks the slot's post-image (now installed on the buffer) against
// its pre-image (now sitting in slot.image, after Finish's swap) one byte at
// a time, following the region map to find where a run traces back to a
// contiguous run on the pre-image. Runs of at least MatchThreshold bytes are
// emitted as a single MOVE; everything else accumulates as a pending COPY.
// Mirrors writeDifferentialData/CHECK_SET.
func (s *pageSlot) encode() {
	post := s.buffer.GetPage()
	pre := &s.image
	s.data = s.data[:0]

	regionIdx := 0
	region := s.regions[0]
	var regionOffset, notMatch, match uint16

	checkSet := func(i uint16) {
		if i-match >= MatchThreshold {
			if notMatch < match {
				s.data = putLength(s.data, match-notMatch, false)
				s.data = append(s.data, post[notMatch:match]...)
			}
			source := region.srcOffset + regionOffset - (i - match)
			s.data = putLength(s.data, i-match, true)
			var srcHdr [2]byte
			srcHdr[0] = byte(source)
			srcHdr[1] = byte(source >> 8)
			s.data = append(s.data, srcHdr[:]...)
			notMatch = i
		}
	}

	for i := uint16(0); i < BlockSize; i++ {
		if regionOffset >= region.length {
			checkSet(i)
			match = i
			regionIdx++
			region = s.regions[regionIdx]
			regionOffset = 0
		}

		if post[i] != pre[region.srcOffset+regionOffset] {
			checkSet(i)
			match = i + 1
		}

		regionOffset++
	}
	checkSet(BlockSize)
	if notMatch < BlockSize {
		s.data = putLength(s.data, BlockSize-notMatch, false)
		s.data = append(s.data, post[notMatch:BlockSize]...)
	}
}
