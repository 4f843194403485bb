package release

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/org/legacyvault/pkg/models"
)

const (
	AutoReleaseSubject   = "Legacy Organizer - Automatic Information Release"
	ManualReleaseSubject = "Legacy Organizer - Information Release"

	autoReleaseNote   = "This information has been automatically released due to inactivity."
	manualReleaseNote = "This information has been released by the account owner."

	dateLayout = "2006-01-02 15:04:05 MST"
)

// BundleEntry is one decrypted entry handed to Render. Err marks an entry
// that could not be decrypted.
type BundleEntry struct {
	Category models.Category
	Fields   map[string]any
	Err      error
}

// Render produces the plaintext release bundle. Output depends only on its
// arguments: categories appear in canonical order (unknown ones after, sorted),
// entries keep their input order, and fields follow the category's form order
// with any extra keys sorted at the end.
func Render(entries []BundleEntry, releasedAt time.Time, note string) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)

	b.WriteString("LEGACY ORGANIZER - INFORMATION RELEASE\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Release Date: %s\n", releasedAt.UTC().Format(dateLayout))
	b.WriteString(note + "\n\n")
	b.WriteString(rule + "\n\n")

	grouped := map[models.Category][]BundleEntry{}
	for _, e := range entries {
		grouped[e.Category] = append(grouped[e.Category], e)
	}
	for _, cat := range categoryOrder(grouped) {
		fmt.Fprintf(&b, "\n%s\n", strings.ToUpper(cat.DisplayName()))
		b.WriteString(strings.Repeat("-", 50) + "\n\n")
		for _, e := range grouped[cat] {
			if e.Err != nil {
				b.WriteString("[Error decrypting entry]\n\n")
				continue
			}
			writeFields(&b, cat, e.Fields)
			b.WriteString(strings.Repeat("-", 30) + "\n\n")
		}
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("END OF INFORMATION RELEASE\n")
	return b.String()
}

func categoryOrder(grouped map[models.Category][]BundleEntry) []models.Category {
	var out []models.Category
	for _, c := range models.Categories {
		if len(grouped[c]) > 0 {
			out = append(out, c)
		}
	}
	var extra []models.Category
	for c := range grouped {
		if !c.Valid() {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func writeFields(b *strings.Builder, cat models.Category, fields map[string]any) {
	for _, key := range fieldOrder(cat, fields) {
		value, ok := formatValue(fields[key])
		if !ok {
			continue
		}
		label := FieldLabel(key)
		if strings.Contains(value, "\n") {
			fmt.Fprintf(b, "%s:\n", label)
			for _, line := range strings.Split(value, "\n") {
				fmt.Fprintf(b, "  %s\n", line)
			}
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func fieldOrder(cat models.Category, fields map[string]any) []string {
	seen := map[string]bool{}
	var keys []string
	for _, k := range cat.Fields() {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// formatValue renders a JSON value. Empty strings, zero, false and null are skipped.
func formatValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return "true", val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), val != 0
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val), true
		}
		return string(data), true
	}
}

// FieldLabel turns a camelCase key into a capitalized phrase:
// "recoveryEmail" becomes "Recovery Email".
func FieldLabel(key string) string {
	var b strings.Builder
	for _, r := range key {
		if unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	label := []rune(b.String())
	if len(label) > 0 {
		label[0] = unicode.ToUpper(label[0])
	}
	return strings.TrimSpace(string(label))
}

// AutoReleaseEmail builds the message sent when inactivity triggers release.
func AutoReleaseEmail(d Decision, bundle string, at time.Time) (subject, body string) {
	when := at.UTC().Format(dateLayout)
	var b strings.Builder
	b.WriteString("Dear Trustee(s),\n\n")
	b.WriteString("This email contains automatically released information from Legacy Organizer.\n\n")
	fmt.Fprintf(&b, "The account owner has been inactive for %d days (threshold: %d days), and the release conditions have been met.\n\n",
		d.DaysInactive, d.ThresholdDays)
	fmt.Fprintf(&b, "Please find the information below. This information was automatically released on %s.\n\n", when)
	b.WriteString("Please keep this information secure and confidential.\n\n")
	b.WriteString("---\n" + bundle + "---\n\n")
	fmt.Fprintf(&b, "This information was automatically released on %s due to %d days of inactivity.\n\n", when, d.DaysInactive)
	b.WriteString("Best regards,\nLegacy Organizer")
	return AutoReleaseSubject, b.String()
}

// ManualReleaseEmail builds the message sent when the owner releases on demand.
func ManualReleaseEmail(bundle string, at time.Time) (subject, body string) {
	var b strings.Builder
	b.WriteString("Dear Trustee(s),\n\n")
	b.WriteString("This email contains the released information from Legacy Organizer.\n\n")
	b.WriteString("---\n\n" + bundle + "\n---\n\n")
	fmt.Fprintf(&b, "This information was released on %s.\n\n", at.UTC().Format(dateLayout))
	b.WriteString("Please keep this information secure and confidential.\n\n")
	b.WriteString("Best regards,\nLegacy Organizer")
	return ManualReleaseSubject, b.String()
}
