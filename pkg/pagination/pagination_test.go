package pagination

import (
	"fmt"
	"math"
	"testing"
)

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 15, 1},
		{1, 15, 1},
		{15, 15, 1},
		{16, 15, 2},
		{30, 15, 2},
		{32, 15, 3},
		{45, 15, 3},
		{46, 15, 4},
		{10, 0, 1},
		{16, -1, 2},
		{32, math.MaxInt, 1},
		{math.MaxInt, math.MaxInt, 1},
		{math.MaxInt, 1, math.MaxInt},
		{math.MaxInt, math.MaxInt - 1, 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d_size=%d", tt.n, tt.size), func(t *testing.T) {
			if got := TotalPages(tt.n, tt.size); got != tt.want {
				t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
			}
		})
	}
}

func TestTotalPages_CeilProperty(t *testing.T) {
	for n := 0; n <= 200; n++ {
		want := (n + DefaultPageSize - 1) / DefaultPageSize
		if want < 1 {
			want = 1
		}
		if got := TotalPages(n, DefaultPageSize); got != want {
			t.Fatalf("TotalPages(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestPageOf(t *testing.T) {
	records := seq(32)

	tests := []struct {
		name      string
		page      int
		wantLen   int
		wantFirst int
	}{
		{name: "first page", page: 1, wantLen: 15, wantFirst: 0},
		{name: "middle page", page: 2, wantLen: 15, wantFirst: 15},
		{name: "last partial page", page: 3, wantLen: 2, wantFirst: 30},
		{name: "past the end", page: 4, wantLen: 0},
		{name: "page zero", page: 0, wantLen: 0},
		{name: "negative page", page: -3, wantLen: 0},
		{name: "huge page", page: math.MaxInt / 10, wantLen: 0},
		{name: "max page", page: math.MaxInt, wantLen: 0},
		{name: "min page", page: math.MinInt, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PageOf(records, tt.page, DefaultPageSize)
			if len(got) != tt.wantLen {
				t.Fatalf("len(PageOf(page=%d)) = %d, want %d", tt.page, len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0] != tt.wantFirst {
				t.Errorf("PageOf(page=%d)[0] = %d, want %d", tt.page, got[0], tt.wantFirst)
			}
		})
	}
}

func TestPageOf_LargePageSize(t *testing.T) {
	records := seq(32)

	if got := PageOf(records, 1, math.MaxInt); len(got) != 32 {
		t.Errorf("len(PageOf(page=1, size=MaxInt)) = %d, want 32", len(got))
	}
	if got := PageOf(records, 2, math.MaxInt); len(got) != 0 {
		t.Errorf("len(PageOf(page=2, size=MaxInt)) = %d, want 0", len(got))
	}
	if got := PageOf(records, math.MaxInt, math.MaxInt); len(got) != 0 {
		t.Errorf("len(PageOf(page=MaxInt, size=MaxInt)) = %d, want 0", len(got))
	}
}

func TestNavigator_MaxTotal(t *testing.T) {
	nav := NewNavigator(math.MaxInt)
	nav.GoTo(math.MaxInt)

	if nav.HasNext() {
		t.Error("Next should be disabled on the last page")
	}
	if nav.Next() || nav.Page() != math.MaxInt {
		t.Errorf("Next on page MaxInt -> page %d, want MaxInt", nav.Page())
	}
}

func TestPageOf_EmptyCatalog(t *testing.T) {
	if got := PageOf([]int(nil), 1, DefaultPageSize); len(got) != 0 {
		t.Errorf("PageOf(nil) = %v, want empty", got)
	}
	if got := TotalPages(0, DefaultPageSize); got != 1 {
		t.Errorf("TotalPages(0) = %d, want 1", got)
	}
}

func TestPageOf_AppendDoesNotClobber(t *testing.T) {
	records := seq(20)
	page := PageOf(records, 1, 15)
	_ = append(page, -1)

	if records[15] != 15 {
		t.Errorf("append to a page overwrote records[15] = %d", records[15])
	}
}

func TestPageOf_CoversAllRecords(t *testing.T) {
	for _, n := range []int{0, 1, 14, 15, 16, 31, 32, 100} {
		records := seq(n)
		total := TotalPages(n, DefaultPageSize)

		seen := 0
		for p := 1; p <= total; p++ {
			for _, v := range PageOf(records, p, DefaultPageSize) {
				if v != seen {
					t.Fatalf("n=%d page=%d: got %d, want %d", n, p, v, seen)
				}
				seen++
			}
		}
		if seen != n {
			t.Errorf("n=%d: pages covered %d records", n, seen)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		page, total, want int
	}{
		{1, 3, 1},
		{0, 3, 1},
		{-5, 3, 1},
		{3, 3, 3},
		{4, 3, 3},
		{2, 0, 1},
	}

	for _, tt := range tests {
		if got := Clamp(tt.page, tt.total); got != tt.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tt.page, tt.total, got, tt.want)
		}
	}
}

func TestNavigator(t *testing.T) {
	nav := NewNavigator(TotalPages(32, DefaultPageSize))

	if nav.Page() != 1 || nav.Total() != 3 {
		t.Fatalf("start = %d/%d, want 1/3", nav.Page(), nav.Total())
	}
	if nav.HasPrev() {
		t.Error("Prev should be disabled on page 1")
	}
	if nav.Prev() {
		t.Error("Prev on page 1 should be a no-op")
	}

	if !nav.Next() || nav.Page() != 2 {
		t.Errorf("Next -> page %d, want 2", nav.Page())
	}
	if !nav.Next() || nav.Page() != 3 {
		t.Errorf("Next -> page %d, want 3", nav.Page())
	}
	if nav.HasNext() {
		t.Error("Next should be disabled on the last page")
	}
	if nav.Next() {
		t.Error("Next on the last page should be a no-op")
	}

	if nav.GoTo(3) {
		t.Error("GoTo current page should report no change")
	}
	nav.GoTo(100)
	if nav.Page() != 3 {
		t.Errorf("GoTo(100) -> page %d, want 3", nav.Page())
	}
	if !nav.GoTo(-1) || nav.Page() != 1 {
		t.Errorf("GoTo(-1) -> page %d, want 1", nav.Page())
	}
}

func TestNavigator_ZeroValue(t *testing.T) {
	var nav Navigator

	if nav.Page() != 1 || nav.Total() != 1 {
		t.Errorf("zero value = %d/%d, want 1/1", nav.Page(), nav.Total())
	}
	if nav.HasPrev() || nav.HasNext() {
		t.Error("zero value should have no navigation")
	}
	if nav.Next() || nav.Prev() {
		t.Error("zero value navigation should be a no-op")
	}
}

func TestNavigator_SetTotalReclamps(t *testing.T) {
	nav := NewNavigator(5)
	nav.GoTo(5)

	if !nav.SetTotal(2) {
		t.Error("shrinking below the current page should report a change")
	}
	if nav.Page() != 2 {
		t.Errorf("Page() = %d, want 2", nav.Page())
	}
	if nav.SetTotal(10) {
		t.Error("growing should not move the page")
	}
}
