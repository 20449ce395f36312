package parser

import (
	"strings"
)

// Generate renders a tree as a canonical eager expression.
// Parsing the result yields a structurally equal tree.
func Generate(root *EagerNode) string {
	if root == nil {
		return ""
	}
	return group(items(root))
}

// items renders the paths below a node, children first, "*" last
func items(n *EagerNode) []string {
	var out []string
	for _, c := range n.Children {
		out = append(out, terms(c)...)
	}
	if n.AllRelations {
		out = append(out, "*")
	}
	return out
}

// terms renders the paths starting at a node.
// A recursive node that also has children renders as two sibling paths.
func terms(n *EagerNode) []string {
	var out []string
	if n.AllRecursive {
		out = append(out, n.RelationName+".^")
	}

	inner := items(n)
	switch {
	case len(inner) > 0:
		out = append(out, n.RelationName+"."+group(inner))
	case !n.AllRecursive:
		out = append(out, n.RelationName)
	}
	return out
}

func group(paths []string) string {
	if len(paths) == 1 {
		return paths[0]
	}
	return "[" + strings.Join(paths, ", ") + "]"
}
