package topology

import (
	"reflect"
	"testing"
)

func TestParseCPUList(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"0-3,5,7-9", []int{0, 1, 2, 3, 5, 7, 8, 9}},
		{"0,2,4", []int{0, 2, 4}},
		{"0-2", []int{0, 1, 2}},
		{" 1 - 3 ", []int{1, 2, 3}},
		{"", nil},
		{"abc,1,x-y", []int{1}},
	}
	for _, c := range cases {
		got := ParseCPUList(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseCPUList(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseCPUList_DuplicatesPreservedByPosition(t *testing.T) {
	got := ParseCPUList("3,1-2,3")
	want := []int{3, 1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
