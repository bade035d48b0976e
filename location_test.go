package goboreal

import (
	"testing"
	"time"
)

func TestLocationOffsets(t *testing.T) {
	testcases := []struct {
		offsetMin int
		name      string
	}{
		{0, "+0000"},
		{120, "+0200"},
		{-330, "-0530"},
		{840, "+1400"},
	}
	for _, tc := range testcases {
		loc := Location(tc.offsetMin)
		assertEqualE(t, loc.String(), tc.name)
		tm := time.Date(2023, 6, 15, 12, 0, 0, 0, loc)
		_, offset := tm.Zone()
		assertEqualE(t, offset, tc.offsetMin*60)
	}
}

func TestLocationCached(t *testing.T) {
	assertTrueE(t, Location(90) == Location(90), "same offset returns the cached location")
}
