package adapters

import (
	"context"
	"testing"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
)

func prefResource(spec *resource.PreferenceSpec) *resource.Resource {
	return &resource.Resource{ID: "pref", Kind: resource.KindPreferenceSet, Spec: spec}
}

func prefRunner(schemas string) *fakeRunner {
	run := newFakeRunner()
	run.respond("gsettings list-schemas", CmdResult{Stdout: schemas})
	return run
}

func TestPrefStore_ResolveTargetFallsBack(t *testing.T) {
	run := prefRunner("org.cinnamon.desktop.interface\norg.gnome.desktop.wm.preferences\n")
	store := NewPrefStore(run)

	target, err := store.ResolveTarget(context.Background(), []resource.PrefTarget{
		{Schema: "org.cinnamon.muffin", Key: "theme"},
		{Schema: "org.cinnamon.desktop.interface", Key: "gtk-theme"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if target.Schema != "org.cinnamon.desktop.interface" {
		t.Errorf("Expected fallback to second candidate, got %s", target.Schema)
	}
}

func TestPrefStore_ResolveTargetNoSchema(t *testing.T) {
	run := prefRunner("org.gnome.something\n")
	store := NewPrefStore(run)

	_, err := store.ResolveTarget(context.Background(), []resource.PrefTarget{
		{Schema: "org.cinnamon.desktop.interface", Key: "gtk-theme"},
	})
	if !engine.IsUnsupported(err) {
		t.Fatalf("Expected unsupported error, got: %v", err)
	}
}

func TestPrefStore_ResolveTargetNoGsettings(t *testing.T) {
	run := newFakeRunner()
	run.missing["gsettings"] = true
	store := NewPrefStore(run)

	_, err := store.ResolveTarget(context.Background(), []resource.PrefTarget{
		{Schema: "org.cinnamon.desktop.interface", Key: "gtk-theme"},
	})
	if !engine.IsUnsupported(err) {
		t.Fatalf("Expected unsupported error without gsettings, got: %v", err)
	}
}

func TestPreferenceAdapter_ProbeSatisfied(t *testing.T) {
	run := prefRunner("org.cinnamon.desktop.interface\n")
	run.respond("gsettings get org.cinnamon.desktop.interface gtk-theme",
		CmdResult{Stdout: "'Mint-Y-Dark'\n"})
	adapter := NewPreferenceAdapter(NewPrefStore(run), nil)

	probe, err := adapter.Probe(context.Background(), prefResource(&resource.PreferenceSpec{
		Targets: []resource.PrefTarget{{Schema: "org.cinnamon.desktop.interface", Key: "gtk-theme"}},
		Value:   "'Mint-Y-Dark'",
	}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !probe.Satisfied {
		t.Errorf("Expected satisfied probe, got: %+v", probe)
	}
}

func TestPreferenceAdapter_ApplySetsValue(t *testing.T) {
	run := prefRunner("org.cinnamon.desktop.interface\n")
	run.respond("gsettings get org.cinnamon.desktop.interface gtk-theme",
		CmdResult{Stdout: "'Adwaita'\n"})
	adapter := NewPreferenceAdapter(NewPrefStore(run), nil)

	result, err := adapter.Apply(context.Background(), prefResource(&resource.PreferenceSpec{
		Targets: []resource.PrefTarget{{Schema: "org.cinnamon.desktop.interface", Key: "gtk-theme"}},
		Value:   "'Mint-Y-Dark'",
	}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Changed {
		t.Error("Expected a change")
	}
	if !run.called("gsettings set org.cinnamon.desktop.interface gtk-theme 'Mint-Y-Dark'") {
		t.Errorf("Expected set call, calls: %v", run.calls)
	}
}

func TestPreferenceAdapter_ListEnsureContains(t *testing.T) {
	run := prefRunner("org.cinnamon\n")
	run.respond("gsettings get org.cinnamon favorite-apps",
		CmdResult{Stdout: "['firefox.desktop']\n"})
	adapter := NewPreferenceAdapter(NewPrefStore(run), nil)

	result, err := adapter.Apply(context.Background(), prefResource(&resource.PreferenceSpec{
		Targets: []resource.PrefTarget{{Schema: "org.cinnamon", Key: "favorite-apps"}},
		ListOp:  &resource.ListOp{Op: resource.ListOpEnsureContains, Element: "'code.desktop'"},
	}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Changed {
		t.Error("Expected a change")
	}
	if !run.called("gsettings set org.cinnamon favorite-apps ['firefox.desktop', 'code.desktop']") {
		t.Errorf("Expected appended list, calls: %v", run.calls)
	}
}

func TestPreferenceAdapter_ListEnsureContainsIdempotent(t *testing.T) {
	run := prefRunner("org.cinnamon\n")
	run.respond("gsettings get org.cinnamon favorite-apps",
		CmdResult{Stdout: "['firefox.desktop', 'code.desktop']\n"})
	adapter := NewPreferenceAdapter(NewPrefStore(run), nil)

	probe, err := adapter.Probe(context.Background(), prefResource(&resource.PreferenceSpec{
		Targets: []resource.PrefTarget{{Schema: "org.cinnamon", Key: "favorite-apps"}},
		ListOp:  &resource.ListOp{Op: resource.ListOpEnsureContains, Element: "'code.desktop'"},
	}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !probe.Satisfied {
		t.Errorf("Expected satisfied probe for already-present element, got: %+v", probe)
	}
}

func TestPreferenceAdapter_ListPrepend(t *testing.T) {
	run := prefRunner("org.cinnamon\n")
	run.respond("gsettings get org.cinnamon favorite-apps",
		CmdResult{Stdout: "['firefox.desktop', 'code.desktop']\n"})
	adapter := NewPreferenceAdapter(NewPrefStore(run), nil)

	_, err := adapter.Apply(context.Background(), prefResource(&resource.PreferenceSpec{
		Targets: []resource.PrefTarget{{Schema: "org.cinnamon", Key: "favorite-apps"}},
		ListOp:  &resource.ListOp{Op: resource.ListOpPrepend, Element: "'code.desktop'"},
	}))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !run.called("gsettings set org.cinnamon favorite-apps ['code.desktop', 'firefox.desktop']") {
		t.Errorf("Expected element moved to front, calls: %v", run.calls)
	}
}

func TestParseListValue(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"[]", nil},
		{"@as []", nil},
		{"['a.desktop']", []string{"'a.desktop'"}},
		{"['a.desktop', 'b.desktop']", []string{"'a.desktop'", "'b.desktop'"}},
		{"['with, comma', 'plain']", []string{"'with, comma'", "'plain'"}},
	}

	for _, tc := range cases {
		got, err := parseListValue(tc.in)
		if err != nil {
			t.Errorf("parseListValue(%q) error: %v", tc.in, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("parseListValue(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("parseListValue(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}

	if _, err := parseListValue("not a list"); err == nil {
		t.Error("Expected error for non-list value")
	}
	if _, err := parseListValue("['unterminated]"); err == nil {
		t.Error("Expected error for unterminated quote")
	}
}

func TestFormatListValue(t *testing.T) {
	if got := formatListValue(nil); got != "@as []" {
		t.Errorf("Expected empty list form @as [], got %q", got)
	}
	if got := formatListValue([]string{"'a'", "'b'"}); got != "['a', 'b']" {
		t.Errorf("Expected ['a', 'b'], got %q", got)
	}
}
