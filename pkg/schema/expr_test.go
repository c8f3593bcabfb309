package schema

import "testing"

func TestTokenize_Basic(t *testing.T) {
	toks, err := tokenize("paragraph+ (heading|text)*")
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	want := []tokenKind{tokName, tokPlus, tokLParen, tokName, tokPipe, tokName, tokRParen, tokStar}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, k := range want {
		if toks[i].kind != k {
			t.Errorf("token %d: kind %v, want %v", i, toks[i].kind, k)
		}
	}
}

func TestTokenize_RejectsUnknownCharacter(t *testing.T) {
	if _, err := tokenize("paragraph#"); err == nil {
		t.Fatal("expected an error for an unrecognized character")
	}
}

func TestParseExpr_EmptyMeansNoChildren(t *testing.T) {
	ast, err := parseExpr("")
	if err != nil {
		t.Fatalf("parseExpr: %v", err)
	}
	seq, ok := ast.(Seq)
	if !ok || len(seq.Items) != 0 {
		t.Fatalf("expected an empty Seq, got %#v", ast)
	}
}

func TestParseExpr_RangeDefaultsMaxToMin(t *testing.T) {
	ast, err := parseExpr("paragraph{3}")
	if err != nil {
		t.Fatalf("parseExpr: %v", err)
	}
	rep, ok := ast.(Repeat)
	if !ok {
		t.Fatalf("expected a Repeat, got %#v", ast)
	}
	if rep.Min != 3 || rep.Max != 3 {
		t.Fatalf("got {%d,%d}, want {3,3}", rep.Min, rep.Max)
	}
}

func TestParseExpr_TrailingPipeIsAnEmptyAlternative(t *testing.T) {
	// expr := seq ('|' seq)* and seq := subscript* allows an empty seq,
	// so a trailing '|' is a valid (if unusual) alternative matching
	// zero children, not a parse error.
	ast, err := parseExpr("paragraph|")
	if err != nil {
		t.Fatalf("parseExpr: %v", err)
	}
	choice, ok := ast.(Choice)
	if !ok || len(choice.Alts) != 2 {
		t.Fatalf("expected a 2-way Choice, got %#v", ast)
	}
}

func TestParseExpr_LeadingCloseParenIsAnError(t *testing.T) {
	if _, err := parseExpr(")paragraph"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestParseExpr_UnclosedParenIsAnError(t *testing.T) {
	if _, err := parseExpr("(paragraph"); err == nil {
		t.Fatal("expected a parse error")
	}
}
