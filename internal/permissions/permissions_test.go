package permissions

import (
	"errors"
	"slices"
	"testing"
)

func Test_Gate_UnknownSubjectDeniedByDefault(t *testing.T) {
	t.Parallel()
	g := NewGate(nil)

	if g.Check("never-registered", CapFSRead) {
		t.Error("unknown subject passed check")
	}
	if err := g.Require("never-registered", CapFSRead); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("want ErrPermissionDenied, got %v", err)
	}
}

func Test_Gate_EffectiveIsDeclaredMinusDeny(t *testing.T) {
	t.Parallel()
	g := NewGate([]Capability{CapProcessSpawn})

	g.Register(Grant{
		Subject:      "calc",
		Capabilities: []Capability{CapNetHTTP, CapProcessSpawn},
	})

	if !g.Check("calc", CapNetHTTP) {
		t.Error("declared capability denied")
	}
	if g.Check("calc", CapProcessSpawn) {
		t.Error("deny-listed capability granted")
	}
	if g.Check("calc", CapFSWrite) {
		t.Error("undeclared capability granted")
	}
}

func Test_Gate_DenyAfterGrantTakesEffect(t *testing.T) {
	t.Parallel()
	g := NewGate(nil)

	g.Register(Grant{Subject: "fs", Capabilities: []Capability{CapFSRead, CapFSWrite}})
	if !g.Check("fs", CapFSWrite) {
		t.Fatal("capability missing before deny")
	}

	g.Deny(CapFSWrite)

	if g.Check("fs", CapFSWrite) {
		t.Error("check still passes after deny")
	}
	if !g.Check("fs", CapFSRead) {
		t.Error("unrelated capability lost after deny")
	}

	// The declared set must be untouched: lifting the deny via
	// re-registration of the same declaration restores nothing extra.
	caps := g.Capabilities("fs")
	if slices.Contains(caps, CapFSWrite) {
		t.Error("effective set still contains denied capability")
	}
}

func Test_Gate_ReregisterReplacesGrant(t *testing.T) {
	t.Parallel()
	g := NewGate(nil)

	g.Register(Grant{Subject: "x", Capabilities: []Capability{CapFSRead}})
	g.Register(Grant{Subject: "x", Capabilities: []Capability{CapNetHTTP}})

	if g.Check("x", CapFSRead) {
		t.Error("old grant survived re-registration")
	}
	if !g.Check("x", CapNetHTTP) {
		t.Error("new grant not in effect")
	}
}

func Test_Gate_UnregisterRestoresDenyByDefault(t *testing.T) {
	t.Parallel()
	g := NewGate(nil)

	g.Register(Grant{Subject: "x", Capabilities: []Capability{CapFSRead}})
	g.Unregister("x")

	if g.Check("x", CapFSRead) {
		t.Error("unregistered subject still passes check")
	}
}
