package telegram

import (
	"strings"
	"testing"

	"avtopost/internal/post"
	logx "avtopost/pkg/logx"
)

func TestClipCaption(t *testing.T) {
	short := "fits"
	if caption, rest := clipCaption(short); caption != short || rest != "" {
		t.Fatalf("short text must pass through: %q %q", caption, rest)
	}

	long := strings.Repeat("я", captionLimit+50) // multi-byte runes
	caption, rest := clipCaption(long)
	if got := len([]rune(caption)); got != captionLimit+1 { // +1 for the ellipsis
		t.Fatalf("caption rune length: %d", got)
	}
	if !strings.HasSuffix(caption, "…") {
		t.Fatalf("clipped caption must end with an ellipsis")
	}
	if len([]rune(rest)) != 50 {
		t.Fatalf("overflow rune length: %d", len([]rune(rest)))
	}
	if caption[:len(caption)-len("…")]+rest != long {
		t.Fatalf("clip must not lose text")
	}
}

func TestInlineKeyboard(t *testing.T) {
	if inlineKeyboard(nil) != nil {
		t.Fatalf("no buttons must yield no markup")
	}

	rm := inlineKeyboard([]post.Button{
		{Text: "Open", URL: "https://example.com"},
		{Text: "More", URL: "https://example.com/more"},
	})
	if rm == nil || len(rm.InlineKeyboard) != 2 {
		t.Fatalf("expected one row per button: %+v", rm)
	}
	if rm.InlineKeyboard[0][0].Text != "Open" || rm.InlineKeyboard[1][0].URL != "https://example.com/more" {
		t.Fatalf("rows: %+v", rm.InlineKeyboard)
	}
}

func TestNewRequiresTokenAndChannel(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("empty token must be rejected")
	}
	if _, err := New(Config{Token: "123:abc"}, logx.Nop()); err == nil {
		t.Fatalf("empty channel must be rejected")
	}
}
