package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/relentless-labs/specbmc/internal/environment"
	"github.com/relentless-labs/specbmc/internal/mir"
	"github.com/stretchr/testify/require"
)

// branchingProgram builds a tiny two-way branch on a high-policy "secret"
// register loaded from memory: the branch condition depends on secret,
// while the only other load reads public_addr, so no load address
// depends on secret.
func branchingProgram() *mir.Program {
	b := mir.NewBuilder("main", "entry")
	b.Block("entry", 0x1000,
		mir.Load{Dest: mir.Register{Name: "secret", W: mir.Width64}, Addr: mir.Register{Name: "secret_addr", W: mir.Width64}, AccessWidth: mir.Width64},
		mir.CondBranch{
			Cond:        mir.BinaryExpr{Op: mir.OpUlt, Left: mir.Register{Name: "secret", W: mir.Width64}, Right: mir.Const{Value: 16, W: mir.Width64}, ResultWidth: 1},
			TrueTarget:  "in_bounds",
			FalseTarget: "out_of_bounds",
		},
	)
	b.Block("in_bounds", 0x1010,
		mir.Load{Dest: mir.Register{Name: "val", W: mir.Width64}, Addr: mir.Register{Name: "public_addr", W: mir.Width64}, AccessWidth: mir.Width64},
		mir.Return{},
	)
	b.Block("out_of_bounds", 0x1020,
		mir.Return{},
	)
	return b.Build()
}

func defaultTestEnv() *environment.Environment {
	env := environment.Defaults()
	env.SkipSolving = true
	env.Policy.Registers.High = []string{"secret"}
	return env
}

func TestRunSkipsSolvingWhenConfigured(t *testing.T) {
	prog := branchingProgram()
	env := defaultTestEnv()

	result, encodingPanic, pipelineErr := Run(context.Background(), prog, env)
	require.Nil(t, encodingPanic)
	require.Nil(t, pipelineErr)
	require.NotNil(t, result)
	require.True(t, result.Skipped)
	require.Equal(t, "main", result.Entry)
}

func TestRunResolvesEntryByAddress(t *testing.T) {
	prog := branchingProgram()
	env := defaultTestEnv()
	env.Analysis.ProgramEntry = "0x1000"

	result, encodingPanic, pipelineErr := Run(context.Background(), prog, env)
	require.Nil(t, encodingPanic)
	require.Nil(t, pipelineErr)
	require.Equal(t, "main", result.Entry)
}

func TestRunRejectsUnknownEntry(t *testing.T) {
	prog := branchingProgram()
	env := defaultTestEnv()
	env.Analysis.ProgramEntry = "does_not_exist"

	result, encodingPanic, pipelineErr := Run(context.Background(), prog, env)
	require.Nil(t, result)
	require.Nil(t, encodingPanic)
	require.NotNil(t, pipelineErr)
}

func TestRunRejectsUnknownPolicyRegister(t *testing.T) {
	prog := branchingProgram()
	env := defaultTestEnv()
	env.Policy.Registers.High = []string{"nosuchregister"}

	result, encodingPanic, pipelineErr := Run(context.Background(), prog, env)
	require.Nil(t, result)
	require.Nil(t, encodingPanic)
	require.NotNil(t, pipelineErr)
}

func TestRunWritesRequestedDumps(t *testing.T) {
	dir := t.TempDir()
	prog := branchingProgram()
	env := defaultTestEnv()
	env.Dumps = environment.Dumps{
		CFG:       filepath.Join(dir, "cfg.dot"),
		TransCFG:  filepath.Join(dir, "trans-cfg.dot"),
		CallGraph: filepath.Join(dir, "call-graph.dot"),
		LoopTree:  filepath.Join(dir, "loop-tree.dot"),
		MIR:       filepath.Join(dir, "prog.mir"),
		LIR:       filepath.Join(dir, "prog.lir"),
		SMT:       filepath.Join(dir, "prog.smt2"),
	}

	_, encodingPanic, pipelineErr := Run(context.Background(), prog, env)
	require.Nil(t, encodingPanic)
	require.Nil(t, pipelineErr)

	for _, path := range []string{env.Dumps.CFG, env.Dumps.TransCFG, env.Dumps.CallGraph, env.Dumps.LoopTree, env.Dumps.MIR, env.Dumps.LIR, env.Dumps.SMT} {
		data, err := os.ReadFile(path)
		require.NoError(t, err, "expected dump file %s to exist", path)
		require.NotEmpty(t, data, "expected dump file %s to be non-empty", path)
	}

	mirText, err := os.ReadFile(env.Dumps.MIR)
	require.NoError(t, err)
	require.Contains(t, string(mirText), "in_bounds")
}

func TestRunNoDumpsWrittenWhenPathsEmpty(t *testing.T) {
	prog := branchingProgram()
	env := defaultTestEnv()

	_, encodingPanic, pipelineErr := Run(context.Background(), prog, env)
	require.Nil(t, encodingPanic)
	require.Nil(t, pipelineErr)
}

func TestResolveEntryDefaultsToProgramEntry(t *testing.T) {
	prog := branchingProgram()
	name, perrErr := resolveEntry(prog, "")
	require.Nil(t, perrErr)
	require.Equal(t, "main", name)
}

func TestResolveEntryEmptyWithNoDefaultIsError(t *testing.T) {
	prog := branchingProgram()
	prog.Entry = ""
	_, perrErr := resolveEntry(prog, "")
	require.NotNil(t, perrErr)
}

func TestCollectKnownRegistersIncludesUsesAndDefs(t *testing.T) {
	prog := branchingProgram()
	regs := collectKnownRegisters(prog.EntryFunction())
	require.True(t, regs["secret"])
	require.True(t, regs["secret_addr"])
	require.True(t, regs["public_addr"])
	require.True(t, regs["val"])
}

func TestSortedKeysIsDeterministic(t *testing.T) {
	m := map[string]bool{"c": true, "a": true, "b": true}
	require.Equal(t, []string{"a", "b", "c"}, sortedKeys(m))
}
