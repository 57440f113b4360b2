package element

// Element is the common contract over the two data-bearing kinds (Events
// and Bytes). size(x) and split(x, n) from spec §4.1 are Size and Split
// here; both are zero-copy — a Split result shares storage with its parent.
type Element interface {
	// Kind reports which of the three element kinds this is.
	Kind() Kind

	// Size returns rows for Events, bytes for Bytes.
	Size() int

	// Split returns (prefix_of_n, remainder). If n == 0 the prefix is
	// empty; if n >= Size() the remainder is empty. Zero-copy: both
	// halves share storage with the original.
	Split(n int) (Element, Element)

	// Release drops this element's reference to its underlying storage.
	// Every Element obtained from a Split, a Sequence, or a buffer must be
	// released exactly once by whoever stops holding it.
	Release()
}

// SplitVec partitions a slice of same-kind chunks at row/byte offset n,
// splitting the single chunk that straddles the boundary with Element.Split.
// Zero-copy throughout.
func SplitVec(chunks []Element, n int) (prefix []Element, remainder []Element) {
	if n <= 0 {
		return nil, chunks
	}
	remaining := n
	i := 0
	for ; i < len(chunks); i++ {
		sz := chunks[i].Size()
		if remaining < sz {
			break
		}
		prefix = append(prefix, chunks[i])
		remaining -= sz
		if remaining == 0 {
			i++
			break
		}
	}
	if i < len(chunks) && remaining > 0 {
		head, tail := chunks[i].Split(remaining)
		prefix = append(prefix, head)
		remainder = append(remainder, tail)
		i++
	}
	remainder = append(remainder, chunks[i:]...)
	return prefix, remainder
}

// TotalSize sums Size() over a slice of elements.
func TotalSize(chunks []Element) int {
	total := 0
	for _, c := range chunks {
		total += c.Size()
	}
	return total
}
