package parser

// EagerNode is one level of a parsed eager expression.
// The root node has an empty RelationName.
// Example: "pets.owner" parses to root -> pets -> owner
type EagerNode struct {
	RelationName string
	Children     []*EagerNode // In first-mention order, names unique
	AllRecursive bool         // name.^ repeats the relation until a level is empty
	AllRelations bool         // * selects every relation of the node's model
}

// Child returns the child with the given relation name
func (n *EagerNode) Child(name string) *EagerNode {
	for _, c := range n.Children {
		if c.RelationName == name {
			return c
		}
	}
	return nil
}

// IsLeaf reports whether the node requests nothing below itself
func (n *EagerNode) IsLeaf() bool {
	return len(n.Children) == 0 && !n.AllRecursive && !n.AllRelations
}

// addChild returns the existing child named name or appends a new one.
// Siblings with the same name are merged this way.
func (n *EagerNode) addChild(name string) *EagerNode {
	if c := n.Child(name); c != nil {
		return c
	}
	c := &EagerNode{RelationName: name}
	n.Children = append(n.Children, c)
	return c
}
