package agent

import (
	"strings"
	"testing"
)

func TestFilterThinkingBasic(t *testing.T) {
	visible, thinking := FilterThinking("<think>plan</think>Hello")
	if visible != "Hello" {
		t.Errorf("visible = %q, want Hello", visible)
	}
	if thinking != "plan" {
		t.Errorf("thinking = %q, want plan", thinking)
	}
}

func TestFilterThinkingMultipleSpans(t *testing.T) {
	visible, thinking := FilterThinking("a<think>one</think>b<THINK>two</THINK>c")
	if visible != "a\n\nb\n\nc" {
		t.Errorf("visible = %q", visible)
	}
	if thinking != "onetwo" {
		t.Errorf("thinking = %q, want onetwo", thinking)
	}
}

func TestFilterThinkingMultiline(t *testing.T) {
	visible, thinking := FilterThinking("<think>line1\nline2</think>\n\nanswer")
	if visible != "answer" {
		t.Errorf("visible = %q", visible)
	}
	if thinking != "line1\nline2" {
		t.Errorf("thinking = %q", thinking)
	}
}

func TestFilterThinkingCollapsesNewlines(t *testing.T) {
	visible, _ := FilterThinking("a\n\n\n\n<think>x</think>\n\n\nb")
	if strings.Contains(visible, "\n\n\n") {
		t.Errorf("visible contains a 3+ newline run: %q", visible)
	}
}

func TestFilterThinkingIdempotent(t *testing.T) {
	inputs := []string{
		"<think>plan</think>Hello",
		"a<think>x</think>\n\n\nb<think>y</think>",
		"no tags at all",
		"",
	}
	for _, in := range inputs {
		once, _ := FilterThinking(in)
		twice, leftover := FilterThinking(once)
		if twice != once {
			t.Errorf("filter not idempotent: %q -> %q -> %q", in, once, twice)
		}
		if leftover != "" {
			t.Errorf("second pass found thinking %q in %q", leftover, once)
		}
	}
}

func TestStreamingFilterTagSplitAcrossChunks(t *testing.T) {
	f := &StreamingThinkingFilter{}

	var visible, thinking strings.Builder
	for _, chunk := range []string{"<thi", "nk>plan", "</th", "ink>Hel", "lo"} {
		v, th := f.Feed(chunk)
		visible.WriteString(v)
		thinking.WriteString(th)
	}
	v, th := f.Flush()
	visible.WriteString(v)
	thinking.WriteString(th)

	if visible.String() != "Hello" {
		t.Errorf("visible = %q, want Hello", visible.String())
	}
	if thinking.String() != "plan" {
		t.Errorf("thinking = %q, want plan", thinking.String())
	}
}

func TestStreamingFilterNoTags(t *testing.T) {
	f := &StreamingThinkingFilter{}
	v, th := f.Feed("plain text")
	v2, _ := f.Flush()
	if v+v2 != "plain text" || th != "" {
		t.Errorf("got visible=%q thinking=%q", v+v2, th)
	}
}

func TestStreamingFilterUnterminatedThink(t *testing.T) {
	f := &StreamingThinkingFilter{}
	v, th := f.Feed("<think>never closed")
	fv, fth := f.Flush()
	if v != "" || fv != "" {
		t.Errorf("unterminated span leaked into visible: %q %q", v, fv)
	}
	if th+fth != "never closed" {
		t.Errorf("thinking = %q", th+fth)
	}
}

func TestStreamingFilterAngleBracketNotTag(t *testing.T) {
	f := &StreamingThinkingFilter{}
	var out strings.Builder
	v, _ := f.Feed("x < y and a<b")
	out.WriteString(v)
	v, _ = f.Flush()
	out.WriteString(v)
	if out.String() != "x < y and a<b" {
		t.Errorf("visible = %q", out.String())
	}
}
