package spec

import (
	"strconv"
	"strings"
)

// Path identifies a step's position in a case as a vector of 1-based
// indices, one per nesting level: step 3 is [3], the second step of its
// taken branch is [3, 2], printed "3.2". Sibling numbering at any level
// is unaffected by how deep other steps branch.
type Path []int

// Child returns the path of the i-th (1-based) step nested under p.
// The result has its own backing array so sibling paths never alias.
func (p Path) Child(i int) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = i
	return child
}

// String renders the dotted form, e.g. "3.1.2".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
