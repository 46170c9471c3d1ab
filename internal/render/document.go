package render

// NodeState is the lifecycle state of a rendered node. Transitions only
// move forward: absent -> provisional -> finalized -> editedFinalized.
// Nothing ever returns a node to provisional.
type NodeState string

const (
	NodeProvisional     NodeState = "provisional"
	NodeFinalized       NodeState = "finalized"
	NodeEditedFinalized NodeState = "editedFinalized"
)

// WordSpan is one rendered word. Low-confidence spans are eligible for
// correction-suggestion highlighting in the editor chrome.
type WordSpan struct {
	Text          string
	LowConfidence bool
}

// SegmentNode is the rendered form of one segment (or the single
// provisional hypothesis).
type SegmentNode struct {
	SegmentID    string
	SpeakerID    string
	SpeakerLabel bool // a speaker-label block precedes this node
	Words        []WordSpan
	State        NodeState
	Active       bool
}

// Text joins the node's words back into a plain string, mostly for
// tests and logging.
func (n *SegmentNode) Text() string {
	out := ""
	for i, w := range n.Words {
		if i > 0 {
			out += " "
		}
		out += w.Text
	}
	return out
}

// Document is the incrementally built transcript view: finalized nodes
// in segment order, plus at most one provisional node at the tail.
type Document struct {
	Nodes       []*SegmentNode
	Provisional *SegmentNode
}

// Node returns the finalized node for a segment id, or nil.
func (d *Document) Node(segmentID string) *SegmentNode {
	for _, n := range d.Nodes {
		if n.SegmentID == segmentID {
			return n
		}
	}
	return nil
}

// ProvisionalCount reports how many ephemeral nodes the document holds.
// The renderer guarantees this never exceeds one.
func (d *Document) ProvisionalCount() int {
	if d.Provisional != nil {
		return 1
	}
	return 0
}
