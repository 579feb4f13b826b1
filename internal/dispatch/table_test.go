package dispatch

import (
	"errors"
	"reflect"
	"testing"
)

func TestDispatch_InvokesHandler(t *testing.T) {
	var got map[string]any
	tbl := NewTable()
	tbl.Register("flame/avsim/demo/scenario/load", func(p map[string]any) error {
		got = p
		return nil
	})

	err := tbl.Dispatch("flame/avsim/demo/scenario/load", []byte(`{"file":"a.json"}`))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if String(got, "file") != "a.json" {
		t.Errorf("payload = %v", got)
	}
}

func TestDispatch_UnknownKeyNeverInvokesHandlers(t *testing.T) {
	calls := 0
	tbl := NewTable()
	tbl.Register("a", func(map[string]any) error { calls++; return nil })
	tbl.Register("b", func(map[string]any) error { calls++; return nil })

	err := tbl.Dispatch("c", []byte(`{}`))
	var re *RoutingError
	if !errors.As(err, &re) || re.RoutingKey != "c" {
		t.Errorf("expected RoutingError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownRoutingKey) {
		t.Errorf("RoutingError should wrap ErrUnknownRoutingKey")
	}
	if calls != 0 {
		t.Errorf("handlers called %d times", calls)
	}
}

func TestDispatch_DecodeErrors(t *testing.T) {
	calls := 0
	tbl := NewTable()
	tbl.Register("k", func(map[string]any) error { calls++; return nil })

	for _, raw := range []string{`not json`, `[1,2]`, `"str"`, `null`, ``} {
		err := tbl.Dispatch("k", []byte(raw))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("Dispatch(%q) = %v, want DecodeError", raw, err)
		}
	}
	if calls != 0 {
		t.Errorf("handler called on bad payload")
	}
}

func TestDispatch_HandlerFailuresAreContained(t *testing.T) {
	boom := errors.New("boom")
	tbl := NewTable()
	tbl.Register("err", func(map[string]any) error { return boom })
	tbl.Register("panic", func(map[string]any) error { panic("kaboom") })

	if err := tbl.Dispatch("err", []byte(`{}`)); !errors.Is(err, boom) {
		t.Errorf("handler error not wrapped: %v", err)
	}

	err := tbl.Dispatch("panic", []byte(`{}`))
	var he *HandlerError
	if !errors.As(err, &he) || he.RoutingKey != "panic" {
		t.Errorf("panic not converted to HandlerError: %v", err)
	}
}

func TestDispatch_SelfFilter(t *testing.T) {
	calls := 0
	h := func(map[string]any) error { calls++; return nil }

	filtered := NewTable(WithSelfFilter("avsim_monitor"))
	filtered.Register("k", h)

	cases := []struct {
		raw    string
		called bool
	}{
		{`{"app":"avsim_monitor"}`, false},
		{`{"app":"cabinview"}`, true},
		{`{}`, true},
	}
	for _, c := range cases {
		calls = 0
		err := filtered.Dispatch("k", []byte(c.raw))
		if (calls == 1) != c.called {
			t.Errorf("%s: called=%v, want %v", c.raw, calls == 1, c.called)
		}
		if !c.called && !errors.Is(err, ErrSelfEcho) {
			t.Errorf("%s: err = %v", c.raw, err)
		}
	}

	open := NewTable()
	open.Register("k", h)
	calls = 0
	open.Dispatch("k", []byte(`{"app":"avsim_monitor"}`))
	if calls != 1 {
		t.Error("without filter every payload should be dispatched")
	}
}

func TestRegister_KeysAndDuplicates(t *testing.T) {
	tbl := NewTable()
	noop := func(map[string]any) error { return nil }
	tbl.Register("z", noop)
	tbl.Register("a", noop)

	if got := tbl.Keys(); !reflect.DeepEqual(got, []string{"z", "a"}) {
		t.Errorf("Keys() = %v", got)
	}
	if !tbl.Has("a") || tbl.Has("b") {
		t.Error("Has mismatch")
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	tbl.Register("a", noop)
}
