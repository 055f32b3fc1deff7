package states

import (
	"errors"
	"reflect"
	"testing"
)

type recorder struct {
	name     string
	log      *[]string
	enterErr error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Enter() error {
	*r.log = append(*r.log, "enter "+r.name)
	return r.enterErr
}

func (r *recorder) Exit() error {
	*r.log = append(*r.log, "exit "+r.name)
	return nil
}

func (r *recorder) Update(dt float64) error {
	*r.log = append(*r.log, "update "+r.name)
	return nil
}

func TestTransitions(t *testing.T) {
	var log []string
	m := NewManager(nil)
	a := &recorder{name: "loading", log: &log}
	b := &recorder{name: "walking", log: &log}

	if err := m.Update(0.1); err != nil {
		t.Fatal(err)
	}
	m.Change(a)
	m.Update(0.1)
	m.Update(0.1)
	m.Change(b)
	m.Update(0.1)
	m.Close()

	want := []string{
		"enter loading", "update loading", "update loading",
		"exit loading", "enter walking", "update walking",
		"exit walking",
	}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("got %v\nwant %v", log, want)
	}
	if m.Current() != nil {
		t.Error("current state kept after Close")
	}
}

func TestEnterError(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	m := NewManager(nil)
	m.Change(&recorder{name: "loading", log: &log, enterErr: boom})
	if err := m.Update(0); !errors.Is(err, boom) {
		t.Errorf("expected wrapped enter error, got %v", err)
	}
}

func TestElapsedResetsOnChange(t *testing.T) {
	var log []string
	m := NewManager(nil)
	m.Change(&recorder{name: "loading", log: &log})
	m.Update(0.25)
	m.Update(0.5)
	if m.Elapsed() != 0.75 {
		t.Errorf("elapsed = %v, want 0.75", m.Elapsed())
	}

	m.Change(&recorder{name: "walking", log: &log})
	m.Update(0.125)
	if m.Elapsed() != 0.125 {
		t.Errorf("elapsed after change = %v, want 0.125", m.Elapsed())
	}
	if m.Changes() != 2 {
		t.Errorf("changes = %d, want 2", m.Changes())
	}
}
