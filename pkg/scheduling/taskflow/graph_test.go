package taskflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/flowgraph/internal/testutil"
	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
)

func TestGraphBuilding(t *testing.T) {
	g := NewGraph("build")
	assert.True(t, g.Empty())
	assert.Equal(t, "build", g.Name())

	a := g.AddTask("a", noop)
	b := g.AddCondition("b", func(context.Context) (int, error) { return 0, nil })
	c := g.AddPlaceholder("c")
	a.Precede(b)
	b.Precede(c, a)

	assert.Equal(t, 3, g.NumTasks())
	assert.Equal(t, KindStatic, a.Kind())
	assert.Equal(t, KindCondition, b.Kind())
	assert.Equal(t, KindPlaceholder, c.Kind())
	assert.Equal(t, 2, b.NumSuccessors())
	assert.Equal(t, 1, a.NumWeakDependents())
	assert.Equal(t, 0, a.NumStrongDependents())
	assert.Equal(t, 1, b.NumStrongDependents())
	assert.Equal(t, "Task(a, static)", a.String())

	var names []string
	b.ForEachSuccessor(func(s Task) { names = append(names, s.Name()) })
	assert.Equal(t, []string{"c", "a"}, names)

	a.SetName("first")
	assert.Equal(t, "first", a.Name())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, Task{}.Valid())

	g.Clear()
	assert.True(t, g.Empty())

	assert.Panics(t, func() { g.AddTask("nil", nil) })
	assert.Panics(t, func() { g.ComposedOf("self", g) })
}

func TestConditionBranch(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("branch")
	tracker := testutil.NewCallbackTracker()

	cond := g.AddCondition("cond", func(context.Context) (int, error) { return 1, nil })
	left := g.AddTask("left", func(context.Context) error { tracker.Mark("left"); return nil })
	right := g.AddTask("right", func(context.Context) error { tracker.Mark("right"); return nil })
	cond.Precede(left, right)

	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, 1, tracker.CallCount())
	assert.Equal(t, "right", tracker.Value())
}

// A -> B -> C, C loops back to B four times before moving on to D.
func TestConditionLoop(t *testing.T) {
	e := newTestExecutor(t, 4)
	g := NewGraph("loop")

	var bRuns, dRuns, iter atomic.Int32
	a := g.AddTask("A", noop)
	b := g.AddTask("B", func(context.Context) error { bRuns.Add(1); return nil })
	c := g.AddCondition("C", func(context.Context) (int, error) {
		if iter.Add(1) < 5 {
			return 0, nil
		}
		return 1, nil
	})
	d := g.AddTask("D", func(context.Context) error { dRuns.Add(1); return nil })
	a.Precede(b)
	b.Precede(c)
	c.Precede(b, d)

	require.NoError(t, g.Validate())
	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, int32(5), bRuns.Load())
	assert.Equal(t, int32(1), dRuns.Load())

	// the loop is re-armed on every run
	iter.Store(0)
	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, int32(10), bRuns.Load())
	assert.Equal(t, int32(2), dRuns.Load())
}

func TestConditionOutOfRangeRunsNothing(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("nowhere")
	var ran atomic.Bool
	cond := g.AddCondition("cond", func(context.Context) (int, error) { return 7, nil })
	cond.Precede(g.AddTask("never", func(context.Context) error { ran.Store(true); return nil }))

	require.NoError(t, runAndWait(t, e, g))
	assert.False(t, ran.Load())
}

func TestMultiCondition(t *testing.T) {
	e := newTestExecutor(t, 4)
	g := NewGraph("multi")

	var mu sync.Mutex
	ran := map[string]bool{}
	mark := func(name string) TaskFunc {
		return func(context.Context) error {
			mu.Lock()
			ran[name] = true
			mu.Unlock()
			return nil
		}
	}

	mc := g.AddMultiCondition("mc", func(context.Context) ([]int, error) { return []int{0, 2, 9}, nil })
	mc.Precede(g.AddTask("x", mark("x")), g.AddTask("y", mark("y")), g.AddTask("z", mark("z")))

	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, map[string]bool{"x": true, "z": true}, ran)
}

func TestConditionErrorFailsRun(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("cond-err")
	boom := errors.New("boom")
	var ran atomic.Bool
	cond := g.AddCondition("cond", func(context.Context) (int, error) { return 0, boom })
	cond.Precede(g.AddTask("next", func(context.Context) error { ran.Store(true); return nil }))

	err := runAndWait(t, e, g)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran.Load())
}

func TestSubflowJoin(t *testing.T) {
	e := newTestExecutor(t, 4)
	g := NewGraph("subflow")

	var children atomic.Int32
	var sawChildren atomic.Int32
	sf := g.AddSubflow("sf", func(_ context.Context, sf *Subflow) error {
		x := sf.AddTask("x", func(context.Context) error { children.Add(1); return nil })
		y := sf.AddTask("y", func(context.Context) error { children.Add(1); return nil })
		z := sf.AddTask("z", func(context.Context) error { children.Add(1); return nil })
		x.Precede(y, z)
		return nil
	})
	after := g.AddTask("after", func(context.Context) error {
		sawChildren.Store(children.Load())
		return nil
	})
	sf.Precede(after)

	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, int32(3), sawChildren.Load())

	// children are rebuilt on each run
	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, int32(6), children.Load())
}

func TestSubflowExplicitJoinAndNesting(t *testing.T) {
	e := newTestExecutor(t, 4)
	g := NewGraph("nested")

	var leaves atomic.Int32
	var afterJoin atomic.Int32
	g.AddSubflow("outer", func(_ context.Context, sf *Subflow) error {
		for i := 0; i < 4; i++ {
			sf.AddSubflow(fmt.Sprintf("inner%d", i), func(_ context.Context, sf *Subflow) error {
				for j := 0; j < 4; j++ {
					sf.AddTask("leaf", func(context.Context) error { leaves.Add(1); return nil })
				}
				return nil
			})
		}
		assert.True(t, sf.Joinable())
		sf.Join()
		assert.False(t, sf.Joinable())
		afterJoin.Store(leaves.Load())
		assert.Panics(t, func() { sf.Join() })
		return nil
	})

	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, int32(16), afterJoin.Load())
}

func TestSubflowDetach(t *testing.T) {
	e := newTestExecutor(t, 4)
	g := NewGraph("detach")

	release := make(chan struct{})
	var detached atomic.Int32
	sf := g.AddSubflow("sf", func(_ context.Context, sf *Subflow) error {
		for i := 0; i < 5; i++ {
			sf.AddTask("child", func(context.Context) error {
				<-release
				detached.Add(1)
				return nil
			})
		}
		sf.Detach()
		return nil
	})
	var afterRan atomic.Bool
	sf.Precede(g.AddTask("after", func(context.Context) error {
		afterRan.Store(true)
		close(release)
		return nil
	}))

	require.NoError(t, runAndWait(t, e, g))
	assert.True(t, afterRan.Load())
	// the run does not complete before detached children do
	assert.Equal(t, int32(5), detached.Load())
}

func TestSubflowChildFailure(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("sf-fail")
	boom := errors.New("child failed")
	var after atomic.Bool
	sf := g.AddSubflow("sf", func(_ context.Context, sf *Subflow) error {
		sf.AddTask("bad", func(context.Context) error { return boom })
		return nil
	})
	sf.Precede(g.AddTask("after", func(context.Context) error { after.Store(true); return nil }))

	err := runAndWait(t, e, g)
	assert.ErrorIs(t, err, boom)
	assert.False(t, after.Load())
}

// f1 has three independent tasks. f2 is a, b -> c -> module(f1) -> d.
// Three runs of f2 start every task of both graphs three times, and d
// always starts after the whole of f1 finished in the same run.
func TestModuleComposition(t *testing.T) {
	rec := newRecorder()
	e := newTestExecutor(t, 4, rec)

	var f1Done atomic.Int32
	f1 := NewGraph("f1")
	for _, name := range []string{"x", "y", "z"} {
		f1.AddTask(name, func(context.Context) error {
			f1Done.Add(1)
			return nil
		})
	}

	f2 := NewGraph("f2")
	a := f2.AddTask("a", noop)
	b := f2.AddTask("b", noop)
	c := f2.AddTask("c", noop)
	m := f2.ComposedOf("m", f1)
	var violations, run atomic.Int32
	d := f2.AddTask("d", func(context.Context) error {
		if f1Done.Load() != 3*run.Add(1) {
			violations.Add(1)
		}
		return nil
	})
	c.Succeed(a, b)
	c.Precede(m)
	m.Precede(d)
	assert.Equal(t, f1, m.Composed())
	assert.Equal(t, KindModule, m.Kind())
	require.NoError(t, f2.Validate())

	f, err := e.RunN(f2, 3)
	require.NoError(t, err)
	require.NoError(t, wait(t, f))

	want := int64(3 * (f1.NumTasks() + f2.NumTasks()))
	assert.Equal(t, int64(24), want)
	assert.Equal(t, want, rec.entries.Load())
	assert.Equal(t, want, rec.exits.Load())
	assert.Equal(t, int32(9), f1Done.Load())
	assert.Equal(t, int32(3), run.Load())
	assert.Zero(t, violations.Load())
	assert.False(t, f1.Running())
}

func TestRuntimeSchedule(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("runtime")

	var ran atomic.Bool
	var workerSeen atomic.Int32
	workerSeen.Store(-2)

	cond := g.AddCondition("gate", func(context.Context) (int, error) { return -1, nil })
	target := g.AddTask("target", func(context.Context) error { ran.Store(true); return nil })
	cond.Precede(target)

	g.AddRuntime("kick", func(_ context.Context, rt *Runtime) error {
		workerSeen.Store(int32(rt.WorkerID()))
		assert.Equal(t, "kick", rt.Task().Name())
		assert.Same(t, e, rt.Executor())
		rt.Schedule(target)
		return nil
	})

	require.NoError(t, runAndWait(t, e, g))
	assert.True(t, ran.Load())
	assert.GreaterOrEqual(t, workerSeen.Load(), int32(0))
}

func TestRuntimeCorun(t *testing.T) {
	e := newTestExecutor(t, 2)

	var inner atomic.Int32
	sub := NewGraph("sub")
	for i := 0; i < 10; i++ {
		sub.AddTask("work", func(context.Context) error { inner.Add(1); return nil })
	}

	g := NewGraph("corun")
	var seen atomic.Int32
	g.AddRuntime("rt", func(_ context.Context, rt *Runtime) error {
		if err := rt.Corun(sub); err != nil {
			return err
		}
		seen.Store(inner.Load())
		return rt.Corun(sub)
	})

	require.NoError(t, runAndWait(t, e, g))
	assert.Equal(t, int32(10), seen.Load())
	assert.Equal(t, int32(20), inner.Load())

	boom := errors.New("boom")
	bad := NewGraph("bad")
	bad.AddTask("fail", func(context.Context) error { return boom })
	g2 := NewGraph("corun-fail")
	g2.AddRuntime("rt", func(_ context.Context, rt *Runtime) error {
		return rt.Corun(bad)
	})
	assert.ErrorIs(t, runAndWait(t, e, g2), boom)
}

func TestPrecedePanicsWhileRunning(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("busy")
	started := make(chan struct{})
	release := make(chan struct{})
	a := g.AddTask("a", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	b := g.AddTask("b", noop)

	f, err := e.Run(g)
	require.NoError(t, err)
	testutil.WaitTimeout(t, started)

	assert.True(t, g.Running())
	assert.Panics(t, func() { a.Precede(b) })
	assert.Panics(t, func() { g.Clear() })

	close(release)
	require.NoError(t, wait(t, f))
	assert.NotPanics(t, func() { a.Precede(b) })
}

func TestValidate(t *testing.T) {
	t.Run("acyclic", func(t *testing.T) {
		g := NewGraph("ok")
		a, b := g.AddTask("a", noop), g.AddTask("b", noop)
		a.Precede(b)
		assert.NoError(t, g.Validate())
	})

	t.Run("strong cycle", func(t *testing.T) {
		g := NewGraph("cyclic")
		s := g.AddTask("s", noop)
		a, b, c := g.AddTask("a", noop), g.AddTask("b", noop), g.AddTask("c", noop)
		s.Precede(a)
		a.Precede(b)
		b.Precede(c)
		c.Precede(a)

		err := g.Validate()
		require.Error(t, err)
		assert.True(t, gferrors.IsValidationError(err))
		assert.Contains(t, err.Error(), "a, b, c")
	})

	t.Run("cycle through condition", func(t *testing.T) {
		g := NewGraph("loop")
		a := g.AddTask("a", noop)
		c := g.AddCondition("c", func(context.Context) (int, error) { return 0, nil })
		a.Precede(c)
		c.Precede(a)
		g.AddTask("start", noop).Precede(a)
		assert.NoError(t, g.Validate())
	})

	t.Run("no source", func(t *testing.T) {
		g := NewGraph("closed")
		a, b := g.AddTask("a", noop), g.AddTask("b", noop)
		a.Precede(b)
		b.Precede(a)
		err := g.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no source")
	})

	t.Run("invalid module", func(t *testing.T) {
		inner := NewGraph("inner")
		x, y := inner.AddTask("x", noop), inner.AddTask("y", noop)
		x.Precede(y)
		y.Precede(x)
		outer := NewGraph("outer")
		outer.ComposedOf("m", inner)
		assert.Error(t, outer.Validate())
	})
}

func TestRunWithoutSourceFails(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("closed")
	a, b := g.AddTask("a", noop), g.AddTask("b", noop)
	a.Precede(b)
	b.Precede(a)

	err := runAndWait(t, e, g)
	assert.True(t, gferrors.IsValidationError(err))
}

func TestDump(t *testing.T) {
	inner := NewGraph("inner")
	inner.AddTask("i1", noop).Precede(inner.AddTask("i2", noop))

	g := NewGraph("demo")
	a := g.AddTask("a", noop)
	cond := g.AddCondition("choose", func(context.Context) (int, error) { return 0, nil })
	m := g.ComposedOf("mod", inner)
	p := g.AddPlaceholder("later")
	a.Precede(cond)
	cond.Precede(m, p)

	out := g.DumpString()
	assert.Contains(t, out, "strict digraph demo {")
	assert.Contains(t, out, "shape=diamond")
	assert.Contains(t, out, "style=dashed")
	assert.Contains(t, out, "shape=box3d")
	assert.Contains(t, out, "mod [m: inner]")
	assert.Contains(t, out, "cluster_inner")
	assert.Contains(t, out, "i1")

	t.Run("write error", func(t *testing.T) {
		w := testutil.NewMockWriter()
		w.SetAlwaysError(testutil.ErrSimulated)
		err := g.Dump(w)
		require.Error(t, err)
		assert.ErrorIs(t, err, testutil.ErrSimulated)
		var opErr *gferrors.OperationError
		assert.ErrorAs(t, err, &opErr)
	})
}

func TestDumpShowsRanSubflow(t *testing.T) {
	e := newTestExecutor(t, 2)
	g := NewGraph("parent")
	g.AddSubflow("spawn", func(_ context.Context, sf *Subflow) error {
		sf.AddTask("child", noop)
		return nil
	})

	assert.NotContains(t, g.DumpString(), "cluster_spawn")
	require.NoError(t, runAndWait(t, e, g))
	out := g.DumpString()
	assert.Contains(t, out, "cluster_spawn")
	assert.Contains(t, out, "child")
}
