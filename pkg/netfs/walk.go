package netfs

import (
	"context"
	"strings"
)

// Walk resolves a slash-separated path from the root and returns the node
// together with its parent. The root is its own parent.
func (s *Session) Walk(ctx context.Context, path string) (node, parent *Node, err error) {
	root := s.Root()
	stack := []*Node{root}

	for _, part := range SplitPath(path) {
		switch part {
		case ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		cur := stack[len(stack)-1]
		if !cur.IsDir() {
			return nil, nil, notExist(ErrInvalidArgument)
		}
		child, err := s.Lookup(ctx, cur.ID, part)
		if err != nil {
			return nil, nil, err
		}
		stack = append(stack, child)
	}

	node = stack[len(stack)-1]
	parent = root
	if len(stack) > 1 {
		parent = stack[len(stack)-2]
	}
	return node, parent, nil
}

// WalkParent resolves the directory holding the last element of path and
// returns it with that element's name.
func (s *Session) WalkParent(ctx context.Context, path string) (dir *Node, name string, err error) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return nil, "", ErrInvalidArgument
	}
	name = parts[len(parts)-1]
	if name == "." || name == ".." {
		return nil, "", ErrInvalidArgument
	}

	dir, _, err = s.Walk(ctx, strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", err
	}
	if !dir.IsDir() {
		return nil, "", notExist(ErrInvalidArgument)
	}
	return dir, name, nil
}

// SplitPath splits a path into its non-empty elements.
func SplitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
