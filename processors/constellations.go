package processors

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxConstellations 讲解中最多提取的星座数
const DefaultMaxConstellations = 8

// constellationAliases 规范名 -> 别名（规范名本身也参与匹配）
var constellationAliases = map[string][]string{
	"Ursa Major":      {"Big Dipper", "Great Bear"},
	"Ursa Minor":      {"Little Dipper", "Little Bear"},
	"Cassiopeia":      {"The Queen"},
	"Orion":           {"The Hunter"},
	"Leo":             {"The Lion"},
	"Virgo":           {"The Maiden"},
	"Libra":           {"The Scales"},
	"Scorpius":        {"Scorpio", "The Scorpion"},
	"Sagittarius":     {"The Archer"},
	"Capricornus":     {"Capricorn", "The Sea Goat"},
	"Aquarius":        {"The Water Bearer"},
	"Pisces":          {"The Fish"},
	"Aries":           {"The Ram"},
	"Taurus":          {"The Bull"},
	"Gemini":          {"The Twins"},
	"Cancer":          {"The Crab"},
	"Andromeda":       {"The Princess"},
	"Perseus":         {"The Hero"},
	"Auriga":          {"The Charioteer"},
	"Bootes":          {"Boötes", "The Herdsman"},
	"Corona Borealis": {"Northern Crown"},
	"Cygnus":          {"The Swan", "Northern Cross"},
	"Lyra":            {"The Harp"},
	"Aquila":          {"The Eagle"},
	"Draco":           {"The Dragon"},
	"Hercules":        {"The Strongman"},
	"Ophiuchus":       {"The Serpent Bearer"},
	"Serpens":         {"The Serpent"},
	"Canis Major":     {"The Great Dog"},
	"Canis Minor":     {"The Little Dog"},
	"Pegasus":         {"The Winged Horse"},
	"Cepheus":         {"The King"},
	"Lacerta":         {"The Lizard"},
	"Vela":            {"The Sails"},
	"Centaurus":       {"The Centaur"},
	"Crux":            {"Southern Cross"},
	"Polaris":         {"North Star", "Pole Star"},
}

type aliasEntry struct {
	alias     string // lower case
	canonical string
}

// aliasIndex 按长度降序，长别名优先占位（"The Serpent Bearer" 先于 "The Serpent"）
var aliasIndex = buildAliasIndex()

func buildAliasIndex() []aliasEntry {
	var idx []aliasEntry
	for canonical, aliases := range constellationAliases {
		idx = append(idx, aliasEntry{alias: strings.ToLower(canonical), canonical: canonical})
		for _, a := range aliases {
			idx = append(idx, aliasEntry{alias: strings.ToLower(a), canonical: canonical})
		}
	}
	sort.Slice(idx, func(i, j int) bool {
		if len(idx[i].alias) != len(idx[j].alias) {
			return len(idx[i].alias) > len(idx[j].alias)
		}
		return idx[i].alias < idx[j].alias
	})
	return idx
}

// CanonicalName maps an alias to its canonical name. ok is false for unknown names.
func CanonicalName(name string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, e := range aliasIndex {
		if e.alias == lower {
			return e.canonical, true
		}
	}
	return strings.TrimSpace(name), false
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

type mention struct {
	span
	canonical string
}

// findMentions 在已转小写的文本中找出所有星座提及，按位置排序
func findMentions(lower string) []mention {
	var claimed []span
	var found []mention
	for _, e := range aliasIndex {
		for _, pos := range wordIndexAll(lower, e.alias) {
			sp := span{pos, pos + len(e.alias)}
			taken := false
			for _, c := range claimed {
				if c.overlaps(sp) {
					taken = true
					break
				}
			}
			if taken {
				continue
			}
			claimed = append(claimed, sp)
			found = append(found, mention{span: sp, canonical: e.canonical})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	return found
}

// ExtractConstellationNames returns canonical names in order of first
// appearance, deduplicated and capped at limit (DefaultMaxConstellations when limit <= 0).
func ExtractConstellationNames(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxConstellations
	}
	seen := make(map[string]bool)
	names := []string{}
	for _, m := range findMentions(strings.ToLower(text)) {
		if seen[m.canonical] {
			continue
		}
		seen[m.canonical] = true
		names = append(names, m.canonical)
		if len(names) == limit {
			break
		}
	}
	return names
}

// wordIndexAll returns every offset of needle in s that sits on word boundaries.
func wordIndexAll(s, needle string) []int {
	var out []int
	if needle == "" {
		return out
	}
	offset := 0
	for {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return out
		}
		pos := offset + i
		end := pos + len(needle)
		if isBoundaryBefore(s, pos) && isBoundaryAfter(s, end) {
			out = append(out, pos)
		}
		offset = pos + 1
	}
}

func isBoundaryBefore(s string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:pos])
	return !isWordRune(r)
}

func isBoundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ---------------- 方位 ----------------

// CompassPoints 八个方位，兜底哈希使用
var CompassPoints = []string{"North", "Northeast", "East", "Southeast", "South", "Southwest", "West", "Northwest"}

// DirectionPolicy 方位关键词与默认方位表
type DirectionPolicy struct {
	// Words are matched case-insensitively, mapped to display form.
	Words map[string]string
	// Abbreviations are matched case-sensitively so that "s" in "Orion's" is ignored.
	Abbreviations map[string]string
	// Defaults is used when the text gives no direction for a constellation.
	Defaults map[string]string
}

// DefaultDirectionPolicy returns the built-in keyword and default tables.
func DefaultDirectionPolicy() DirectionPolicy {
	return DirectionPolicy{
		Words: map[string]string{
			"north":         "North",
			"northeast":     "Northeast",
			"north-east":    "Northeast",
			"north east":    "Northeast",
			"east":          "East",
			"southeast":     "Southeast",
			"south-east":    "Southeast",
			"south east":    "Southeast",
			"south":         "South",
			"southwest":     "Southwest",
			"south-west":    "Southwest",
			"south west":    "Southwest",
			"west":          "West",
			"northwest":     "Northwest",
			"north-west":    "Northwest",
			"north west":    "Northwest",
			"northern":      "North",
			"northeastern":  "Northeast",
			"north-eastern": "Northeast",
			"eastern":       "East",
			"southeastern":  "Southeast",
			"south-eastern": "Southeast",
			"southern":      "South",
			"southwestern":  "Southwest",
			"south-western": "Southwest",
			"western":       "West",
			"northwestern":  "Northwest",
			"north-western": "Northwest",
			"overhead":      "Overhead",
			"zenith":        "Overhead",
			"above":         "Overhead",
		},
		// 单字母只认括号形式，"W shape" 里的 W 不是方位
		Abbreviations: map[string]string{
			"(N)": "North", "NE": "Northeast", "(E)": "East", "SE": "Southeast",
			"(S)": "South", "SW": "Southwest", "(W)": "West", "NW": "Northwest",
		},
		Defaults: map[string]string{
			"Ursa Major":  "North",
			"Ursa Minor":  "North",
			"Cassiopeia":  "North",
			"Polaris":     "North",
			"Orion":       "South",
			"Leo":         "South",
			"Scorpius":    "South",
			"Sagittarius": "South",
			"Cygnus":      "Overhead",
			"Lyra":        "West",
			"Aquila":      "East",
			"Andromeda":   "Northeast",
			"Perseus":     "Northeast",
			"Pegasus":     "West",
			"Taurus":      "West",
			"Gemini":      "East",
		},
	}
}

type token struct {
	span
	direction string
}

// findTokens 长词优先占位，"north-east" 不会再被拆成 north 和 east
func findTokens(haystack string, table map[string]string) []token {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var out []token
	for _, k := range keys {
		for _, pos := range wordIndexAll(haystack, k) {
			sp := span{pos, pos + len(k)}
			taken := false
			for _, t := range out {
				if t.overlaps(sp) {
					taken = true
					break
				}
			}
			if !taken {
				out = append(out, token{span: sp, direction: table[k]})
			}
		}
	}
	return out
}

// outsideMentions drops tokens inside a constellation name ("Northern Cross").
func outsideMentions(tokens []token, mentions []mention) []token {
	out := tokens[:0]
	for _, t := range tokens {
		inside := false
		for _, m := range mentions {
			if m.overlaps(t.span) {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, t)
		}
	}
	return out
}

func gap(a, b span) int {
	switch {
	case a.end <= b.start:
		return b.start - a.end
	case b.end <= a.start:
		return a.start - b.end
	default:
		return 0
	}
}

// nearest 返回距离任一提及最近的方位，距离相同取靠前者
func nearest(mentions []span, tokens []token) (string, bool) {
	best, bestGap, bestPos := "", -1, 0
	for _, t := range tokens {
		for _, m := range mentions {
			g := gap(m, t.span)
			if bestGap < 0 || g < bestGap || (g == bestGap && t.start < bestPos) {
				best, bestGap, bestPos = t.direction, g, t.start
			}
		}
	}
	return best, bestGap >= 0
}

// Extract assigns a direction to every name: the nearest direction word on
// a line mentioning the constellation, then the defaults table, then a
// compass point derived from the name.
func (p DirectionPolicy) Extract(text string, names []string) map[string]string {
	out := make(map[string]string, len(names))
	lines := strings.Split(text, "\n")

	for _, name := range names {
		if dir, ok := p.fromText(lines, name); ok {
			out[name] = dir
			continue
		}
		if dir, ok := p.Defaults[name]; ok {
			out[name] = dir
			continue
		}
		out[name] = HashedCompassPoint(name)
	}
	return out
}

func (p DirectionPolicy) fromText(lines []string, name string) (string, bool) {
	canonical, _ := CanonicalName(name)
	for _, line := range lines {
		lower := strings.ToLower(line)

		mentions := findMentions(lower)
		var spans []span
		for _, m := range mentions {
			if m.canonical == canonical {
				spans = append(spans, m.span)
			}
		}
		if len(spans) == 0 {
			continue
		}

		// 先用整词，再用缩写
		if dir, ok := nearest(spans, outsideMentions(findTokens(lower, p.Words), mentions)); ok {
			return dir, true
		}
		// ToLower may change byte offsets for some runes; only trust
		// abbreviation offsets when lengths agree.
		if len(lower) == len(line) {
			if dir, ok := nearest(spans, outsideMentions(findTokens(line, p.Abbreviations), mentions)); ok {
				return dir, true
			}
		}
	}
	return "", false
}

// HashedCompassPoint picks a stable compass point for a name (FNV-1a).
func HashedCompassPoint(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return CompassPoints[h.Sum32()%uint32(len(CompassPoints))]
}

// ExtractCompassDirections uses DefaultDirectionPolicy.
func ExtractCompassDirections(text string, names []string) map[string]string {
	return DefaultDirectionPolicy().Extract(text, names)
}
