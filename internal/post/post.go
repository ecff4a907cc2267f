// Package post defines the schedulable content unit and its identity key.
package post

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// fingerprintTextLen bounds how much of the text participates in the
// fingerprint digest. Editing a post beyond this prefix keeps its identity,
// which matches the dedup intent: a typo fix deep in a long post must not
// cause a second publication.
const fingerprintTextLen = 200

// Button is one inline URL button attached to a post.
type Button struct {
	Text string
	URL  string
}

// Item is one scheduled post as read from the catalog.
//
// Date and Time are kept in their catalog form ("2006-01-02", "15:04"); they
// carry no timezone and are interpreted in the operator's configured location
// at scheduling time.
type Item struct {
	Date     string
	Time     string
	Text     string
	PhotoURL string
	VideoURL string
	Buttons  []Button
}

// Valid reports whether the item carries the identity fields required for
// scheduling. Items missing any of them are skipped, not errored.
func (it Item) Valid() bool {
	return strings.TrimSpace(it.Date) != "" &&
		strings.TrimSpace(it.Time) != "" &&
		strings.TrimSpace(it.Text) != ""
}

// ScheduledAt resolves the item's wall-clock time in loc.
// ok is false when the date or time does not parse.
func (it Item) ScheduledAt(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	d := strings.TrimSpace(it.Date)
	t := strings.TrimSpace(it.Time)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if ts, err := time.ParseInLocation(layout, d+" "+t, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Fingerprint returns the stable identity key for the item.
//
// The key is built from the fields that identify the logical post: scheduled
// date, scheduled time, media references and a digest of the leading part of
// the normalized text. It depends on nothing else, so re-parsing the same
// catalog row on a later run always yields the same key.
func (it Item) Fingerprint() string {
	text := NormalizeText(it.Text)
	r := []rune(text)
	if len(r) > fingerprintTextLen {
		r = r[:fingerprintTextLen]
	}
	sum := xxhash.Sum64String(string(r))
	return fmt.Sprintf("%s %s %s%s#%016x",
		strings.TrimSpace(it.Date), strings.TrimSpace(it.Time),
		strings.TrimSpace(it.PhotoURL), strings.TrimSpace(it.VideoURL), sum)
}

var (
	escapedNewline = regexp.MustCompile(`(?i)\\n|/n`)
	spaceBeforeNL  = regexp.MustCompile("[  ]+\n")
)

// NormalizeText canonicalizes catalog text: all newline styles become LF,
// escaped newlines from CSV cells ("\n", "/n") become real ones, tabs become
// spaces and trailing whitespace before line breaks is dropped.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = escapedNewline.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	s = spaceBeforeNL.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
