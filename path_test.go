package sdfat32

import "testing"

func TestDeriveSFNSimple(t *testing.T) {
	sfn, truncated := deriveSFN("hello.txt")
	if truncated {
		t.Fatal("unexpected truncation")
	}
	want := [11]byte{'H', 'E', 'L', 'L', 'O', ' ', ' ', ' ', 'T', 'X', 'T'}
	if sfn != want {
		t.Fatalf("sfn = %q, want %q", sfn, want)
	}
}

func TestDeriveSFNTruncation(t *testing.T) {
	sfn, truncated := deriveSFN("really_long_filename.txt")
	if !truncated {
		t.Fatal("expected truncation")
	}
	if sfn[6] != '~' || sfn[7] != '1' {
		t.Fatalf("sfn = %q, want ~1 suffix at bytes 6-7", sfn)
	}
	if string(sfn[8:11]) != "TXT" {
		t.Fatalf("extension = %q, want TXT", sfn[8:11])
	}
}

func TestDeriveSFNReservedChars(t *testing.T) {
	sfn, _ := deriveSFN("a+b,c.txt")
	// '+' and ',' are in the SFN reserved set and become '_'.
	if sfn[1] != '_' || sfn[3] != '_' {
		t.Fatalf("sfn = %q, want reserved chars replaced with '_'", sfn)
	}
}

func TestDeriveSFNLeadingDots(t *testing.T) {
	sfn, truncated := deriveSFN("...config")
	if truncated {
		t.Fatal("unexpected truncation")
	}
	if string(sfn[:6]) != "CONFIG" {
		t.Fatalf("sfn base = %q, want CONFIG", sfn[:6])
	}
}

func TestParsePathNameTrimsTrailing(t *testing.T) {
	n, next, err := parsePathName("readme.txt.../rest", 0)
	if !err.isOK() {
		t.Fatalf("parsePathName: %v", err)
	}
	if n.path != "readme.txt" {
		t.Fatalf("path = %q, want %q", n.path, "readme.txt")
	}
	if next != len("readme.txt...") {
		t.Fatalf("next = %d, want %d", next, len("readme.txt..."))
	}
}

func TestParsePathNameRejectsReserved(t *testing.T) {
	if _, _, err := parsePathName("bad*name", 0); err != ErrParsePath {
		t.Fatalf("err = %v, want ErrParsePath", err)
	}
}

func TestParsePathNameEmptyComponent(t *testing.T) {
	if _, _, err := parsePathName("...", 0); err != ErrParsePath {
		t.Fatalf("err = %v, want ErrParsePath", err)
	}
}

func TestParsePathNameMultipleComponents(t *testing.T) {
	path := "dir1/dir2/file.txt"
	n1, next1, err := parsePathName(path, 0)
	if !err.isOK() || n1.path != "dir1" {
		t.Fatalf("first component = %+v, err=%v", n1, err)
	}
	if path[next1] != '/' {
		t.Fatalf("next1 = %d, expected separator", next1)
	}
	n2, next2, err := parsePathName(path, next1+1)
	if !err.isOK() || n2.path != "dir2" {
		t.Fatalf("second component = %+v, err=%v", n2, err)
	}
	n3, next3, err := parsePathName(path, next2+1)
	if !err.isOK() || n3.path != "file.txt" {
		t.Fatalf("third component = %+v, err=%v", n3, err)
	}
	if next3 != len(path) {
		t.Fatalf("next3 = %d, want %d", next3, len(path))
	}
}
