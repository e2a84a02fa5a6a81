package cardkey

import "testing"

func TestNormalize(t *testing.T) {
	expected := "What is Go?\nA language."
	normalized := Normalize("  What is Go?\r\nA language. \r\n")

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestKey(t *testing.T) {
	t.Run("key is deterministic", func(t *testing.T) {
		if Key("Q", "A") != Key("Q", "A") {
			t.Error("Expected keys for identical cards to be the same")
		}
	})

	t.Run("normalization produces same key", func(t *testing.T) {
		if Key("  What is Go? ", "A language.\r\n") != Key("What is Go?", "A language.") {
			t.Error("Expected keys to be the same after normalization, but they were different.")
		}
	})

	t.Run("case is significant", func(t *testing.T) {
		if Key("what is go?", "a") == Key("What is Go?", "a") {
			t.Error("Expected keys to differ by case")
		}
	})

	t.Run("field boundary is significant", func(t *testing.T) {
		if Key("ab", "c") == Key("a", "bc") {
			t.Error("Expected keys with shifted field boundaries to differ")
		}
	})

	t.Run("key is hex sha256", func(t *testing.T) {
		if got := len(Key("Q", "A")); got != 64 {
			t.Errorf("Expected a 64 character key, but got %d", got)
		}
	})
}
