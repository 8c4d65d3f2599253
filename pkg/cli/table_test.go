package cli

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestCapWidths_NoConstraint(t *testing.T) {
	widths := []int{5, 20, 10}
	got := capWidths(widths, []string{"COL1", "COL2", "COL3"}, 80, 0)
	if !reflect.DeepEqual(got, widths) {
		t.Errorf("capWidths() = %v, want %v", got, widths)
	}
}

func TestCapWidths_ReducesWidest(t *testing.T) {
	// 5 + 60 + 10 + 2*2 = 79
	widths := []int{5, 60, 10}
	got := capWidths(widths, []string{"NUM", "DEVICE", "STATUS"}, 78, 0)
	if got[1] != 59 || got[0] != 5 || got[2] != 10 {
		t.Errorf("capWidths() = %v, want [5 59 10]", got)
	}
	if widths[1] != 60 {
		t.Error("capWidths() modified its input")
	}
}

func TestCapWidths_RespectsHeaderMinimum(t *testing.T) {
	got := capWidths([]int{3, 8}, []string{"NUM", "PLATFORM"}, 5, 0)
	if got[0] != 3 || got[1] != 8 {
		t.Errorf("capWidths() = %v, want header minimums [3 8]", got)
	}
}

func TestVisualLen(t *testing.T) {
	if got := visualLen("\x1b[32mOK\x1b[0m"); got != 2 {
		t.Errorf("visualLen(colored) = %d, want 2", got)
	}
	if got := visualLen("ünï"); got != 3 {
		t.Errorf("visualLen(unicode) = %d, want 3", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("networks.getNetwork", 8); got != "network…" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 8); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
}

func TestTable_Output(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable("DEVICE", "STATUS").WithWriter(&buf).WithPrefix("  ")
	tbl.Row("apic1", "ok")
	tbl.Row("meraki-core", "skipped")
	tbl.Flush()

	want := strings.Join([]string{
		"  DEVICE       STATUS",
		"  ------       ------",
		"  apic1        ok",
		"  meraki-core  skipped",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Errorf("Flush() output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTable_EmptyPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	NewTable("A", "B").WithWriter(&buf).Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table printed %q", buf.String())
	}
}
