package agent

import (
	"regexp"
	"strings"
)

var (
	thinkSpanRe    = regexp.MustCompile(`(?is)<think>(.*?)</think>`)
	newlineRunRe   = regexp.MustCompile(`\n{3,}`)
	thinkOpenTag   = "<think>"
	thinkCloseTag  = "</think>"
	thinkTagSearch = regexp.MustCompile(`(?i)<think>`)
	thinkTagClose  = regexp.MustCompile(`(?i)</think>`)
)

// FilterThinking splits a string into user-visible content and internal
// reasoning. Thinking is the concatenation of every <think>...</think>
// span (case-insensitive, dot matches newline); the visible remainder
// has those spans replaced by paragraph breaks, runs of three or more
// newlines collapsed to two, and leading/trailing newlines stripped.
// The function is idempotent: filtering already-filtered text is the
// identity.
func FilterThinking(s string) (visible, thinking string) {
	var thoughts []string
	visible = thinkSpanRe.ReplaceAllStringFunc(s, func(span string) string {
		inner := thinkSpanRe.FindStringSubmatch(span)[1]
		if inner != "" {
			thoughts = append(thoughts, inner)
		}
		return "\n\n"
	})
	visible = newlineRunRe.ReplaceAllString(visible, "\n\n")
	visible = strings.Trim(visible, "\n")
	return visible, strings.Join(thoughts, "")
}

// StreamingThinkingFilter applies the thinking filter incrementally to
// a token stream. It tracks an open-tag state across chunks and holds
// back any partial tag prefix at the end of a chunk until it can be
// classified.
type StreamingThinkingFilter struct {
	inThink bool
	pending string
}

// Feed consumes the next stream delta and returns the visible and
// thinking increments it releases.
func (f *StreamingThinkingFilter) Feed(delta string) (visible, thinking string) {
	buf := f.pending + delta
	f.pending = ""

	var vis, think strings.Builder
	for buf != "" {
		if f.inThink {
			loc := thinkTagClose.FindStringIndex(buf)
			if loc == nil {
				if keep := partialTagSuffix(buf, thinkCloseTag); keep > 0 {
					think.WriteString(buf[:len(buf)-keep])
					f.pending = buf[len(buf)-keep:]
				} else {
					think.WriteString(buf)
				}
				buf = ""
				continue
			}
			think.WriteString(buf[:loc[0]])
			buf = buf[loc[1]:]
			f.inThink = false
			continue
		}

		loc := thinkTagSearch.FindStringIndex(buf)
		if loc == nil {
			if keep := partialTagSuffix(buf, thinkOpenTag); keep > 0 {
				vis.WriteString(buf[:len(buf)-keep])
				f.pending = buf[len(buf)-keep:]
			} else {
				vis.WriteString(buf)
			}
			buf = ""
			continue
		}
		vis.WriteString(buf[:loc[0]])
		buf = buf[loc[1]:]
		f.inThink = true
	}
	return vis.String(), think.String()
}

// Flush releases any held-back text at end of stream. An unterminated
// thinking span stays in the thinking channel.
func (f *StreamingThinkingFilter) Flush() (visible, thinking string) {
	out := f.pending
	f.pending = ""
	if out == "" {
		return "", ""
	}
	if f.inThink {
		return "", out
	}
	return out, ""
}

// partialTagSuffix returns the length of the longest suffix of buf that
// is a strict prefix of tag, compared case-insensitively.
func partialTagSuffix(buf, tag string) int {
	max := len(tag) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		if strings.EqualFold(buf[len(buf)-n:], tag[:n]) {
			return n
		}
	}
	return 0
}
