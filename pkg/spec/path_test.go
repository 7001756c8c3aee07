package spec

import "testing"

func TestPath_String(t *testing.T) {
	cases := []struct {
		path Path
		want string
	}{
		{Path{3}, "3"},
		{Path{3, 1}, "3.1"},
		{Path{3, 1, 2}, "3.1.2"},
	}
	for _, tc := range cases {
		if got := tc.path.String(); got != tc.want {
			t.Errorf("%v.String() = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestPath_ChildDoesNotAlias(t *testing.T) {
	base := Path{3}
	a := base.Child(1)
	b := base.Child(2)

	if a.String() != "3.1" || b.String() != "3.2" {
		t.Fatalf("children = %s, %s", a, b)
	}

	// A grandchild of a must not clobber b
	_ = a.Child(1)
	if b.String() != "3.2" {
		t.Errorf("sibling path mutated: %s", b)
	}
}
