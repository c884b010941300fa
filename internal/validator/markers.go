package validator

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// findMarker walks the leaf tokens of the tree outside opaque subtrees and
// returns the first one whose text is a forbidden marker.
func findMarker(root *sitter.Node, source []byte, set *compiledSet) *sitter.Node {
	if len(set.markers) == 0 {
		return nil
	}

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, skip := set.opaque[n.Type()]; skip {
			continue
		}
		count := int(n.ChildCount())
		if count == 0 {
			if _, hit := set.markers[n.Content(source)]; hit {
				return n
			}
			continue
		}
		// Push in reverse so tokens are visited in source order.
		for i := count - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return nil
}
