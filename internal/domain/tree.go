package domain

// TransformationTree is one node of a project's transformation forest.
type TransformationTree struct {
	Node     Transformation        `json:"node"`
	Children []*TransformationTree `json:"children"`
}

// BuildTree groups a flat row set into a forest using an adjacency map
// keyed by parent ID. Rows with a nil parent become roots. No cycle
// detection is performed; callers must guarantee acyclicity (rows are only
// ever created pointing at an already-existing parent and a row can never
// be its own parent).
// Parameters:
//   - rows: flat set of transformations, typically one project's rows.
// Returns:
//   - []*TransformationTree: forest of root nodes with children attached.
func BuildTree(rows []Transformation) []*TransformationTree {
	children := make(map[string][]Transformation)
	var roots []Transformation

	for _, row := range rows {
		if row.ParentID == nil {
			roots = append(roots, row)
			continue
		}
		children[*row.ParentID] = append(children[*row.ParentID], row)
	}

	var attach func(parent Transformation) *TransformationTree
	attach = func(parent Transformation) *TransformationTree {
		node := &TransformationTree{Node: parent}
		for _, child := range children[parent.ID] {
			node.Children = append(node.Children, attach(child))
		}
		return node
	}

	forest := make([]*TransformationTree, 0, len(roots))
	for _, root := range roots {
		forest = append(forest, attach(root))
	}
	return forest
}

// CollectDescendantIDs returns every transitive child of rootID in
// depth-first order. The root itself is never included. Used for cascading
// delete and cascading invalidation.
// Parameters:
//   - rows: flat set of transformations to search.
//   - rootID: ID whose descendants are collected.
// Returns:
//   - []string: IDs of all transitive descendants.
func CollectDescendantIDs(rows []Transformation, rootID string) []string {
	children := make(map[string][]string)
	for _, row := range rows {
		if row.ParentID == nil {
			continue
		}
		children[*row.ParentID] = append(children[*row.ParentID], row.ID)
	}

	var ids []string
	// Explicit stack keeps the traversal bounded for large projects.
	stack := append([]string(nil), children[rootID]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ids = append(ids, id)
		stack = append(stack, children[id]...)
	}
	return ids
}
