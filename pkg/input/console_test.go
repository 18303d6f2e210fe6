package input

import (
	"strings"
	"testing"
)

func TestReadConsole(t *testing.T) {
	l := NewLocal()
	if err := ReadConsole(strings.NewReader("+right bomb\n+up -up\nnope\n"), l); err != nil {
		t.Fatal(err)
	}
	l.Update()

	if !l.IsDown(Right) || l.IsDown(Up) || l.IsDown(Bomb) {
		t.Errorf("held keys are wrong")
	}
	for _, a := range []Action{Right, Bomb, Up} {
		if !l.WasPressed(a) {
			t.Errorf("%v should be pressed", a)
		}
	}
	if Command(l, "jump") {
		t.Errorf("unknown command accepted")
	}
}
