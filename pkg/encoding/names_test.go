package encoding

import "testing"

func TestSplitNames(t *testing.T) {
	block := []byte("tileset\\a.blp\x00tileset\\b.blp\x00")
	names, offsets := SplitNames(block)

	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
	if names[1] != "tileset\\b.blp" {
		t.Errorf("expected second name tileset\\b.blp, got %q", names[1])
	}
	if offsets[0] != 0 || offsets[1] != 14 {
		t.Errorf("expected offsets [0 14], got %v", offsets)
	}
}

func TestSplitNames_SkipsPadding(t *testing.T) {
	names, offsets := SplitNames([]byte("a\x00\x00b\x00"))
	if len(names) != 2 || names[1] != "b" || offsets[1] != 3 {
		t.Errorf("unexpected split: %v %v", names, offsets)
	}
}

func TestJoinNames(t *testing.T) {
	block, offsets := JoinNames([]string{"abc", "de"})
	if string(block) != "abc\x00de\x00" {
		t.Errorf("unexpected block %q", block)
	}
	if offsets[1] != 4 {
		t.Errorf("expected offset 4, got %d", offsets[1])
	}
}

func TestDecodeName_Windows1252(t *testing.T) {
	got := DecodeName([]byte{'c', 0xE9})
	if got != "cé" {
		t.Errorf("expected cé, got %q", got)
	}
	if string(EncodeName(got)) != "c\xe9" {
		t.Errorf("encode did not restore original bytes")
	}
}

func TestUpperName(t *testing.T) {
	if UpperName("world/generic/tree.m2") != "WORLD\\GENERIC\\TREE.M2" {
		t.Errorf("unexpected upper name %q", UpperName("world/generic/tree.m2"))
	}
}

func TestEqualFold(t *testing.T) {
	if !EqualFold("Tileset\\Grass.BLP", "tileset\\grass.blp") {
		t.Error("expected case-insensitive match")
	}
	if EqualFold("a.blp", "b.blp") {
		t.Error("expected mismatch")
	}
}
