package terrain

import (
	"errors"
	"testing"
	"time"

	"github.com/istavang/medea.js/pkg/math"
)

func pollUntil(t *testing.T, d *Dispatcher, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for offload results")
		}
		if err := d.Poll(); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDispatcherSynchronousFallback(t *testing.T) {
	d := NewDispatcher(0, nil)
	defer d.Close()

	if d.Async() {
		t.Fatal("zero workers should be synchronous")
	}

	hf := flatHeightField(3, 3, 0, 1)
	var got TangentSpace
	task := d.Dispatch(CommandTangentSpace, TangentSpaceArgs{Positions: hf.Positions, Width: 3, Height: 3}, func(res any, err error) {
		if err != nil {
			t.Fatal(err)
		}
		got = res.(TangentSpace)
	})

	if !task.Done() || len(got.Normals) != 9 {
		t.Fatalf("synchronous dispatch did not complete: done=%v normals=%d", task.Done(), len(got.Normals))
	}
	if got.Normals[4] != (math.Vec3{Y: 1}) {
		t.Errorf("normal = %v, want up", got.Normals[4])
	}
}

func TestDispatcherAsync(t *testing.T) {
	d := NewDispatcher(2, nil)
	defer d.Close()

	results := make(map[int]int)
	d.Register("square", func(args any) (any, error) {
		n := args.(int)
		return n * n, nil
	})
	for i := 0; i < 10; i++ {
		d.Dispatch("square", i, func(res any, err error) {
			if err != nil {
				t.Error(err)
			}
			results[i] = res.(int)
		})
	}
	if d.Pending() != 10 {
		t.Fatalf("Pending() = %d, want 10", d.Pending())
	}

	pollUntil(t, d, func() bool { return d.Pending() == 0 })

	for i := 0; i < 10; i++ {
		if results[i] != i*i {
			t.Errorf("results[%d] = %d, want %d", i, results[i], i*i)
		}
	}
}

func TestDispatcherCommandError(t *testing.T) {
	d := NewDispatcher(0, nil)
	defer d.Close()

	var got error
	d.Dispatch(CommandTangentSpace, "not args", func(_ any, err error) { got = err })
	if got == nil {
		t.Error("expected error for bad arguments")
	}

	got = nil
	d.Dispatch("nope", nil, func(_ any, err error) { got = err })
	if got == nil {
		t.Error("expected error for unknown command")
	}
}

func TestDispatcherUnknownJob(t *testing.T) {
	d := NewDispatcher(1, nil)
	defer d.Close()

	err := d.deliver(jobResult{id: 42})
	if !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestDispatcherCancel(t *testing.T) {
	d := NewDispatcher(1, nil)
	defer d.Close()

	called := false
	task := d.Dispatch(CommandTangentSpace, TangentSpaceArgs{Width: 0, Height: 0}, func(any, error) { called = true })
	task.Cancel()

	pollUntil(t, d, func() bool { return d.Pending() == 0 })
	if called {
		t.Error("cancelled job callback ran")
	}
}

func TestDispatcherCloseDiscardsPending(t *testing.T) {
	d := NewDispatcher(1, nil)

	release := make(chan struct{})
	d.Register("wait", func(any) (any, error) {
		<-release
		return nil, nil
	})

	called := false
	d.Dispatch("wait", nil, func(any, error) { called = true })
	close(release)
	d.Close()

	if d.Pending() != 0 {
		t.Errorf("Pending() = %d after Close", d.Pending())
	}
	if err := d.Poll(); err != nil {
		t.Errorf("Poll after Close: %v", err)
	}
	if called {
		t.Error("callback ran after Close")
	}
}

func TestDispatcherDispatchAfterClose(t *testing.T) {
	for _, workers := range []int{0, 2} {
		d := NewDispatcher(workers, nil)
		d.Close()

		called := false
		task := d.Dispatch(CommandTangentSpace, TangentSpaceArgs{}, func(any, error) { called = true })
		if !task.Cancelled() || task.Done() {
			t.Errorf("workers=%d: task cancelled=%v done=%v, want cancelled", workers, task.Cancelled(), task.Done())
		}
		if d.Pending() != 0 {
			t.Errorf("workers=%d: Pending() = %d after Close", workers, d.Pending())
		}
		if err := d.Poll(); err != nil {
			t.Errorf("workers=%d: Poll: %v", workers, err)
		}
		if called {
			t.Errorf("workers=%d: callback ran after Close", workers)
		}
		d.Close()
	}
}
