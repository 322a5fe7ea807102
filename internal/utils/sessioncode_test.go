package utils

import (
	"strings"
	"testing"
)

const testAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

func TestRandomCodeShape(t *testing.T) {
	for _, length := range []int{4, 5, 8} {
		code, err := RandomCode(testAlphabet, length)
		if err != nil {
			t.Fatalf("length %d: %v", length, err)
		}
		if len(code) != length {
			t.Errorf("got %q with length %d, want %d", code, len(code), length)
		}
		for _, r := range code {
			if !strings.ContainsRune(testAlphabet, r) {
				t.Errorf("code %q contains %q outside the alphabet", code, r)
			}
		}
	}
}

func TestRandomCodeExcludesAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := RandomCode(testAlphabet, 5)
		if err != nil {
			t.Fatal(err)
		}
		if strings.ContainsAny(code, "0O1IL") {
			t.Fatalf("code %q contains an ambiguous character", code)
		}
	}
}

func TestRandomCodeVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := RandomCode(testAlphabet, 5)
		if err != nil {
			t.Fatal(err)
		}
		seen[code] = true
	}
	// 100 draws from a ~28M space colliding down to a handful would
	// mean the generator is broken.
	if len(seen) < 95 {
		t.Errorf("only %d distinct codes in 100 draws", len(seen))
	}
}
