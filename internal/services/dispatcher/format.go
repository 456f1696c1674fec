package dispatcher

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

const (
	descriptionLimit = 75
	captionLimit     = 1024
)

// Formatter renders a listing as Telegram HTML. Scraped text is stripped of
// markup before it is escaped for the message.
type Formatter struct {
	strict *bluemonday.Policy
}

func NewFormatter() *Formatter {
	return &Formatter{strict: bluemonday.StrictPolicy()}
}

// plain strips tags from scraped text and returns it unescaped.
func (f *Formatter) plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(f.strict.Sanitize(s)))
}

func (f *Formatter) Text(l *listing.Listing) string {
	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "<b>%s:</b> %s\n", label, html.EscapeString(value))
	}

	line("Price", formatNumber(l.Price))
	line("City", strconv.FormatInt(l.City, 10))
	line("Address", f.plain(l.Address))
	line("Rooms", strconv.Itoa(l.RoomsCount))
	if l.Area > 0 {
		line("Area", formatNumber(l.Area)+" m²")
	}
	switch {
	case l.Floor > 0 && l.TotalFloors > 0:
		line("Floor", fmt.Sprintf("%d of %d", l.Floor, l.TotalFloors))
	case l.Floor > 0:
		line("Floor", strconv.Itoa(l.Floor))
	}
	if d := f.plain(l.Description); d != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(truncate(d, descriptionLimit)))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
