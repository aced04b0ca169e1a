package mir

import "testing"

func reg(name string, w Width) Register { return Register{Name: name, W: w} }

func TestBuilderProducesWellFormedBlocks(t *testing.T) {
	prog := NewBuilder("main", "entry").
		Block("entry", 0x0,
			Assign{Dest: reg("x", Width64), Expr: Const{Value: 1, W: Width64}},
			CondBranch{Cond: reg("c", Width64), TrueTarget: "t", FalseTarget: "f"},
		).
		Block("t", 0x10, Jump{Target: "join"}).
		Block("f", 0x20, Jump{Target: "join"}).
		Block("join", 0x30, Return{}).
		Build()

	fn := prog.EntryFunction()
	if fn == nil {
		t.Fatal("expected entry function to be present")
	}
	entry := fn.Block("entry")
	if entry.Terminator() == nil {
		t.Fatal("expected entry block to have a terminator")
	}
	succs := entry.Successors()
	if len(succs) != 2 || succs[0] != "t" || succs[1] != "f" {
		t.Fatalf("unexpected successors: %v", succs)
	}
}

func TestSuccessorsExhaustive(t *testing.T) {
	cases := []struct {
		name string
		in   Instruction
		want []BlockID
	}{
		{"jump", Jump{Target: "a"}, []BlockID{"a"}},
		{"cond", CondBranch{TrueTarget: "a", FalseTarget: "b"}, []BlockID{"a", "b"}},
		{"call", Call{Callee: "f", Return: "r"}, []BlockID{"r"}},
		{"ret", Return{}, nil},
		{"assign", Assign{}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Successors(c.in)
			if len(got) != len(c.want) {
				t.Fatalf("got %v want %v", got, c.want)
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Fatalf("got %v want %v", got, c.want)
				}
			}
		})
	}
}

func TestEffectsOfLoadTouchesCache(t *testing.T) {
	ld := Load{Dest: reg("t", Width64), Addr: reg("a", Width64), AccessWidth: Width64}
	effs := Effects(ld, 0x100)
	if len(effs) != 1 || effs[0].Kind != EffectCacheFetch {
		t.Fatalf("expected a single cache-fetch effect, got %+v", effs)
	}
}

func TestEffectsOfConditionalBranchTouchesPHT(t *testing.T) {
	br := CondBranch{Cond: reg("c", Width64), TrueTarget: "t", FalseTarget: "f"}
	effs := Effects(br, 0x200)
	if len(effs) != 1 || effs[0].Kind != EffectPHTUpdate {
		t.Fatalf("expected a single PHT-update effect, got %+v", effs)
	}
}

func TestDirectCalleesDeduplicated(t *testing.T) {
	prog := NewBuilder("main", "entry").
		Block("entry", 0,
			Call{Callee: "helper", Return: "after1"},
		).
		Block("after1", 1,
			Call{Callee: "helper", Return: "after2"},
		).
		Block("after2", 2, Return{}).
		Build()
	callees := prog.EntryFunction().DirectCallees()
	if len(callees) != 1 || callees[0] != "helper" {
		t.Fatalf("expected deduplicated [helper], got %v", callees)
	}
}
