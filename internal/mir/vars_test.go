package mir

import "testing"

func TestUsesAndDefs(t *testing.T) {
	rax := Register{Name: "rax", W: Width64}
	rbx := Register{Name: "rbx", W: Width64}

	assign := Assign{Dest: rax, Expr: BinaryExpr{Op: OpAdd, Left: rax, Right: rbx, ResultWidth: Width64}}
	if got := Uses(assign); len(got) != 2 {
		t.Errorf("Uses(assign) = %v, want 2 registers", got)
	}
	if dest, ok := Defs(assign); !ok || dest != "rax" {
		t.Errorf("Defs(assign) = (%q, %v), want (rax, true)", dest, ok)
	}

	load := Load{Dest: rbx, Addr: rax, AccessWidth: Width64}
	if got := Uses(load); len(got) != 1 || got[0] != "rax" {
		t.Errorf("Uses(load) = %v, want [rax]", got)
	}
	if dest, ok := Defs(load); !ok || dest != "rbx" {
		t.Errorf("Defs(load) = (%q, %v), want (rbx, true)", dest, ok)
	}

	store := Store{Addr: rax, Value: rbx, AccessWidth: Width64}
	if got := Uses(store); len(got) != 2 {
		t.Errorf("Uses(store) = %v, want 2 registers", got)
	}
	if _, ok := Defs(store); ok {
		t.Errorf("Defs(store) should report no destination")
	}

	jump := Jump{Target: "b1"}
	if got := Uses(jump); got != nil {
		t.Errorf("Uses(jump) = %v, want nil", got)
	}
}
