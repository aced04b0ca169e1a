package policy

import "testing"

func TestDefaultsApplyWithoutOverrides(t *testing.T) {
	p := New(Low, High)
	if p.Register("rax") != Low {
		t.Fatal("expected default register level Low")
	}
	if p.Memory(0x1000) != High {
		t.Fatal("expected default memory level High")
	}
}

func TestRegisterOverrideWins(t *testing.T) {
	p := New(Low, High)
	p.SetRegister("secret", High)
	if p.Register("secret") != High {
		t.Fatal("expected override to win")
	}
	if p.Register("rax") != Low {
		t.Fatal("expected non-overridden register to keep default")
	}
}

func TestMemoryRangeOverrideAndCarveOut(t *testing.T) {
	p := New(Low, High)
	p.SetMemoryRange(AddrRange{Start: 0x1000, End: 0x2000}, Low)
	p.SetMemoryRange(AddrRange{Start: 0x1500, End: 0x1600}, High)

	if p.Memory(0x1100) != Low {
		t.Fatal("expected address in the low range to be Low")
	}
	if p.Memory(0x1550) != High {
		t.Fatal("expected carved-out sub-range to win (most recent match)")
	}
	if p.Memory(0x3000) != High {
		t.Fatal("expected address outside all ranges to fall back to default")
	}
}

func TestIsAllLow(t *testing.T) {
	p := New(Low, Low)
	if !p.IsAllLow() {
		t.Fatal("expected all-low policy to report true")
	}
	p.SetMemoryRange(AddrRange{Start: 0, End: 8}, High)
	if p.IsAllLow() {
		t.Fatal("expected a high override to break all-low")
	}
}

func TestLowRegisterNamesSorted(t *testing.T) {
	p := New(High, High)
	p.SetRegister("rbx", Low)
	p.SetRegister("rax", Low)
	p.SetRegister("rcx", High)

	got := p.LowRegisterNames()
	want := []string{"rax", "rbx"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}
}
