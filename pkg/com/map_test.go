package com

import (
	"errors"
	"sync"
	"testing"
)

type member struct {
	key  string
	hits int
}

func TestPointerValue(t *testing.T) {
	m := NewMap[string, *member]()
	c := member{key: "a"}
	m.Put(c.key, &c)
	fc, _ := m.FindBy(func(v *member) bool { return v.key == "a" })
	c.hits = 100
	fc2, _ := m.Find("a")
	if fc.hits != 100 || fc2.hits != 100 {
		t.Errorf("not expected change, o: %v != %v != %v", c.hits, fc.hits, fc2.hits)
	}
}

func TestFind(t *testing.T) {
	m := NewMap[int, string]()
	if _, err := m.Find(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	m.Put(1, "one")
	if !m.Has(1) || m.IsEmpty() || m.Len() != 1 {
		t.Errorf("bad map state")
	}
	if v, ok := m.Pop(1); !ok || v != "one" || !m.IsEmpty() {
		t.Errorf("pop %v %v", v, ok)
	}
	if _, ok := m.Pop(1); ok {
		t.Errorf("pop of a missing key")
	}
}

func TestGetOrPut(t *testing.T) {
	m := NewMap[string, *member]()
	var wg sync.WaitGroup
	created := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := m.GetOrPut("room", func() *member { return &member{key: "room"} })
			created <- ok
		}()
	}
	wg.Wait()
	close(created)
	n := 0
	for ok := range created {
		if ok {
			n++
		}
	}
	if n != 1 || len(m.Values()) != 1 {
		t.Errorf("created %v times", n)
	}
}
