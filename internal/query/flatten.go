package query

// Flattened is the parent-before-children ordering of a tree. A node's
// position in Nodes is its stable index for the rest of an analysis run.
type Flattened struct {
	Nodes  []*Node
	Parent []int
	index  map[*Node]int
}

// Flatten lists the root followed by its descendants in level order. It uses
// a worklist over the growing output rather than recursion so that wide or
// deep trees cannot exhaust the stack, and it visits each node instance once.
func Flatten(root *Node) *Flattened {
	f := &Flattened{index: make(map[*Node]int)}
	if root == nil {
		return f
	}
	f.add(root, -1)
	for pos := 0; pos < len(f.Nodes); pos++ {
		for _, child := range f.Nodes[pos].Children {
			if _, seen := f.index[child]; seen {
				continue
			}
			f.add(child, pos)
		}
	}
	return f
}

func (f *Flattened) add(n *Node, parent int) {
	f.index[n] = len(f.Nodes)
	f.Nodes = append(f.Nodes, n)
	f.Parent = append(f.Parent, parent)
}

// Len returns the number of nodes.
func (f *Flattened) Len() int {
	return len(f.Nodes)
}

// Root returns the first node, or nil for an empty ordering.
func (f *Flattened) Root() *Node {
	if len(f.Nodes) == 0 {
		return nil
	}
	return f.Nodes[0]
}

// IndexOf returns the index of n, or -1 when n is not part of the tree.
func (f *Flattened) IndexOf(n *Node) int {
	if i, ok := f.index[n]; ok {
		return i
	}
	return -1
}

// ChildIndices returns the indices of the children of the node at i, in
// child order. A child listed twice appears twice.
func (f *Flattened) ChildIndices(i int) []int {
	children := f.Nodes[i].Children
	out := make([]int, len(children))
	for k, c := range children {
		out[k] = f.index[c]
	}
	return out
}
