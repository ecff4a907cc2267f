// Package catalog loads the scheduled-post catalog from a delimited file.
//
// The file is operator-maintained (usually exported from a spreadsheet), so
// loading is forgiving: separator is auto-detected, a UTF-8 BOM is stripped,
// blank rows are dropped and unknown columns are ignored.
package catalog

import (
	"encoding/csv"
	"errors"
	"io"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"avtopost/internal/post"
)

// maxButtons is the number of btnN_text/btnN_url column pairs recognized.
const maxButtons = 4

var ErrEmpty = errors.New("catalog is empty")

// Load reads the catalog file at path.
//
// The first row is a header; recognized columns are date, time, text,
// photo_url (alias photo), video_url (alias video) and btn1_text..btn4_text
// with btn1_url..btn4_url. Rows whose cells are all blank are skipped.
func Load(path string) ([]post.Item, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(b))
}

// Parse decodes catalog content. See Load.
func Parse(src string) ([]post.Item, error) {
	src = strings.TrimPrefix(src, "\ufeff")
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	if strings.TrimSpace(src) == "" {
		return nil, ErrEmpty
	}

	r := csv.NewReader(strings.NewReader(src))
	r.Comma = detectSeparator(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var items []post.Item
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := map[string]string{}
		blank := true
		for i, cell := range rec {
			if i >= len(header) || header[i] == "" {
				continue
			}
			row[header[i]] = cell
			if strings.TrimSpace(cell) != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		items = append(items, itemFromRow(row))
	}
	return items, nil
}

func itemFromRow(row map[string]string) post.Item {
	photo := row["photo_url"]
	if strings.TrimSpace(photo) == "" {
		photo = row["photo"]
	}
	video := row["video_url"]
	if strings.TrimSpace(video) == "" {
		video = row["video"]
	}

	it := post.Item{
		Date:     strings.TrimSpace(row["date"]),
		Time:     strings.TrimSpace(row["time"]),
		Text:     post.NormalizeText(row["text"]),
		PhotoURL: directMediaURL(photo),
		VideoURL: directMediaURL(video),
	}
	for i := 1; i <= maxButtons; i++ {
		n := "btn" + strconv.Itoa(i)
		text := strings.TrimSpace(row[n+"_text"])
		u := strings.TrimSpace(row[n+"_url"])
		if text != "" && u != "" {
			it.Buttons = append(it.Buttons, post.Button{Text: text, URL: u})
		}
	}
	return it
}

// detectSeparator picks "," or ";" by counting both in the header line,
// ignoring anything inside quoted cells. Spreadsheet exports in locales with
// a decimal comma use ";".
func detectSeparator(src string) rune {
	inQ := false
	commas, semis := 0, 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; {
		case c == '"':
			if inQ && i+1 < len(src) && src[i+1] == '"' {
				i++
			} else {
				inQ = !inQ
			}
		case !inQ && c == '\n':
			if semis > commas {
				return ';'
			}
			return ','
		case !inQ && c == ',':
			commas++
		case !inQ && c == ';':
			semis++
		}
	}
	if semis > commas {
		return ';'
	}
	return ','
}

var driveFileRe = regexp.MustCompile(`/file/d/([^/]+)`)

// directMediaURL rewrites Google Drive share links to their direct-download
// form, which is what the Telegram API needs to fetch media by URL.
func directMediaURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.Contains(u.Hostname(), "drive.google.com") {
		if m := driveFileRe.FindStringSubmatch(u.Path); m != nil {
			return "https://drive.google.com/uc?export=download&id=" + m[1]
		}
	}
	return raw
}
