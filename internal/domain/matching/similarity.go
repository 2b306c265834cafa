package matching

import "sort"

// Sequences at least this long ignore over-represented runes when seeding
// matching blocks. The blocks are still extended across them afterwards.
const popularThreshold = 200

// Block is a run of Size equal runes starting at A in the first sequence
// and at B in the second.
type Block struct {
	A    int
	B    int
	Size int
}

// sequence is the right-hand side of a comparison with its rune index
// prepared. It is read-only once built and safe to share between goroutines.
type sequence struct {
	runes []rune
	// positions of every non-popular rune, ascending
	index map[rune][]int
}

func newSequence(s string) *sequence {
	runes := []rune(s)
	index := make(map[rune][]int)
	for j, r := range runes {
		index[r] = append(index[r], j)
	}

	if n := len(runes); n >= popularThreshold {
		limit := n/100 + 1
		for r, positions := range index {
			if len(positions) > limit {
				delete(index, r)
			}
		}
	}

	return &sequence{runes: runes, index: index}
}

// Score returns the similarity of a and b on a 0-100 scale. Both inputs are
// normalized first. Two strings that normalize to empty score 100.
func Score(a, b string) float64 {
	return ratio([]rune(Normalize(a)), newSequence(Normalize(b)))
}

// MatchingBlocks returns the non-overlapping common runs of a and b ordered
// by position. Inputs are compared as given, without normalization.
func MatchingBlocks(a, b string) []Block {
	return matchingBlocks([]rune(a), newSequence(b))
}

func ratio(a []rune, b *sequence) float64 {
	total := len(a) + len(b.runes)
	if total == 0 {
		return 100
	}

	matched := 0
	for _, blk := range matchingBlocks(a, b) {
		matched += blk.Size
	}

	return 2 * float64(matched) / float64(total) * 100
}

func matchingBlocks(a []rune, b *sequence) []Block {
	type span struct{ alo, ahi, blo, bhi int }

	var blocks []Block
	queue := []span{{0, len(a), 0, len(b.runes)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		blk := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if blk.Size == 0 {
			continue
		}
		blocks = append(blocks, blk)

		if s.alo < blk.A && s.blo < blk.B {
			queue = append(queue, span{s.alo, blk.A, s.blo, blk.B})
		}
		if blk.A+blk.Size < s.ahi && blk.B+blk.Size < s.bhi {
			queue = append(queue, span{blk.A + blk.Size, s.ahi, blk.B + blk.Size, s.bhi})
		}
	}

	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].A != blocks[j].A {
			return blocks[i].A < blocks[j].A
		}
		return blocks[i].B < blocks[j].B
	})

	return blocks
}

// longestMatch finds the longest common run inside a[alo:ahi] and
// b[blo:bhi]. Among equally long runs it keeps the one starting earliest in
// a, then earliest in b.
func longestMatch(a []rune, b *sequence, alo, ahi, blo, bhi int) Block {
	best := Block{A: alo, B: blo}

	// runLen[j] is the length of the common run ending at a[i-1], b[j]
	runLen := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := make(map[int]int, len(runLen))
		for _, j := range b.index[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := runLen[j-1] + 1
			next[j] = k
			if k > best.Size {
				best = Block{A: i - k + 1, B: j - k + 1, Size: k}
			}
		}
		runLen = next
	}

	// popular runes never seed a run, so grow the winner across them
	for best.A > alo && best.B > blo && a[best.A-1] == b.runes[best.B-1] {
		best.A--
		best.B--
		best.Size++
	}
	for best.A+best.Size < ahi && best.B+best.Size < bhi &&
		a[best.A+best.Size] == b.runes[best.B+best.Size] {
		best.Size++
	}

	return best
}
