package fairness

// Category is the label a pot gets for one round by its rank in total wagered.
type Category string

const (
	Low    Category = "low"
	Medium Category = "medium"
	High   Category = "high"
)

// Categories in ascending pot-total order.
var Categories = []Category{Low, Medium, High}

// History is a bounded FIFO of past winning categories. It is owned by a
// single round loop and is not safe for concurrent use.
type History struct {
	size    int
	entries []Category
}

func NewHistory(size int, initial ...Category) *History {
	h := &History{size: size, entries: make([]Category, 0, size+1)}
	for _, c := range initial {
		h.Append(c)
	}
	return h
}

// Append adds c and evicts the oldest entry past capacity.
func (h *History) Append(c Category) {
	h.entries = append(h.entries, c)
	if len(h.entries) > h.size {
		h.entries = h.entries[len(h.entries)-h.size:]
	}
}

func (h *History) Len() int { return len(h.entries) }

func (h *History) Size() int { return h.size }

// Entries returns a copy, oldest first.
func (h *History) Entries() []Category {
	out := make([]Category, len(h.entries))
	copy(out, h.entries)
	return out
}

// Counts tallies the categories currently in the window.
func (h *History) Counts() map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range h.entries {
		out[c]++
	}
	return out
}
