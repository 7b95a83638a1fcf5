package processors

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractConstellationNames(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "alias and canonical collapse",
			text: "Look for the Big Dipper tonight. Ursa Major is easy to find.",
			want: []string{"Ursa Major"},
		},
		{
			name: "order of first appearance",
			text: "Orion rises in the east. Later Cassiopeia and the Great Bear appear, and Orion sets.",
			want: []string{"Orion", "Cassiopeia", "Ursa Major"},
		},
		{
			name: "the-aliases canonicalise",
			text: "The Lion chases the Hunter while The Scorpion waits.",
			want: []string{"Leo", "Orion", "Scorpius"},
		},
		{
			name: "longest alias wins",
			text: "The Serpent Bearer stands above the horizon.",
			want: []string{"Ophiuchus"},
		},
		{
			name: "case insensitive",
			text: "CYGNUS and lyra overhead",
			want: []string{"Cygnus", "Lyra"},
		},
		{
			name: "word boundaries",
			text: "The weather varies but the sky is clear.",
			want: []string{},
		},
		{
			name: "diacritics alias",
			text: "Boötes follows the Northern Crown.",
			want: []string{"Bootes", "Corona Borealis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractConstellationNames(tt.text, 0)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractConstellationNamesCapAndIdempotence(t *testing.T) {
	text := strings.Join([]string{
		"Orion", "Taurus", "Gemini", "Cancer", "Leo", "Virgo", "Libra",
		"Scorpius", "Sagittarius", "Capricornus", "Aquarius", "Pisces",
	}, ", ")

	got := ExtractConstellationNames(text, 0)
	if len(got) != DefaultMaxConstellations {
		t.Fatalf("len = %d, want %d", len(got), DefaultMaxConstellations)
	}
	if got[0] != "Orion" || got[7] != "Scorpius" {
		t.Errorf("unexpected order: %v", got)
	}

	again := ExtractConstellationNames(text, 0)
	if !reflect.DeepEqual(got, again) {
		t.Errorf("extraction is not idempotent: %v vs %v", got, again)
	}
	if n := len(ExtractConstellationNames(text, 3)); n != 3 {
		t.Errorf("custom cap ignored: %d", n)
	}
}

func TestCanonicalName(t *testing.T) {
	cases := map[string]string{
		"big dipper":   "Ursa Major",
		" North Star ": "Polaris",
		"Scorpio":      "Scorpius",
		"Orion":        "Orion",
	}
	for in, want := range cases {
		got, ok := CanonicalName(in)
		if !ok || got != want {
			t.Errorf("CanonicalName(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if got, ok := CanonicalName("Kraken"); ok || got != "Kraken" {
		t.Errorf("unknown name should pass through: %q %v", got, ok)
	}
}

func TestExtractCompassDirections(t *testing.T) {
	text := "Orion is low in the South after dusk.\n" +
		"Look NE for Perseus.\n" +
		"Cassiopeia forms a W shape high in the north-east.\n" +
		"Cygnus is nearly overhead.\n" +
		"The Great Bear sits to the northwest of Polaris."

	names := ExtractConstellationNames(text, 0)
	got := ExtractCompassDirections(text, names)

	want := map[string]string{
		"Orion":      "South",
		"Perseus":    "Northeast",
		"Cassiopeia": "Northeast",
		"Cygnus":     "Overhead",
		"Ursa Major": "Northwest",
		"Polaris":    "Northwest",
	}
	for name, dir := range want {
		if got[name] != dir {
			t.Errorf("%s: got %q, want %q", name, got[name], dir)
		}
	}
}

func TestCompassDirectionsFromText(t *testing.T) {
	tests := []struct {
		text string
		name string
		want string
	}{
		{"Orion rises in the southeastern sky.", "Orion", "Southeast"},
		{"Leo climbs the eastern horizon.", "Leo", "East"},
		{"Draco coils through the northern sky.", "Draco", "North"},
		{"Lyra is low in the north-western sky.", "Lyra", "Northwest"},
		{"Andromeda hangs in the southern sky.", "Andromeda", "South"},
		{"Gemini sets in the western sky.", "Gemini", "West"},
		{"Hercules stands in the southwestern sky.", "Hercules", "Southwest"},
		{"Perseus is in the northeastern sky.", "Perseus", "Northeast"},
		{"Cygnus, the Northern Cross, is in the eastern sky.", "Cygnus", "East"},
		{"Aquila sits low (W) after sunset.", "Aquila", "West"},
		{"Look NW for Taurus.", "Taurus", "Northwest"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ExtractCompassDirections(tt.text, []string{tt.name})
			if got[tt.name] != tt.want {
				t.Errorf("%s: got %q, want %q", tt.name, got[tt.name], tt.want)
			}
		})
	}
}

func TestCompassDirectionsIgnoreBareLetters(t *testing.T) {
	got := ExtractCompassDirections("Cassiopeia forms a W shape high up.", []string{"Cassiopeia"})
	if got["Cassiopeia"] != "North" {
		t.Errorf("Cassiopeia: got %q, want the default North", got["Cassiopeia"])
	}
	got = ExtractCompassDirections("W-shaped Cassiopeia is easy to spot.", []string{"Cassiopeia"})
	if got["Cassiopeia"] != "North" {
		t.Errorf("Cassiopeia: got %q, want the default North", got["Cassiopeia"])
	}
}

func TestCompassDirectionsNeverOmitNames(t *testing.T) {
	text := "Tonight you can see Leo, Draco and Hercules."
	names := []string{"Leo", "Draco", "Hercules", "Kraken"}

	got := ExtractCompassDirections(text, names)
	if len(got) != len(names) {
		t.Fatalf("got %d entries, want %d: %v", len(got), len(names), got)
	}
	if got["Leo"] != "South" {
		t.Errorf("Leo should fall back to the default table, got %q", got["Leo"])
	}
	for _, n := range names {
		dir := got[n]
		valid := dir == "Overhead"
		for _, p := range CompassPoints {
			if dir == p {
				valid = true
			}
		}
		if !valid {
			t.Errorf("%s has invalid direction %q", n, dir)
		}
	}
	if got["Draco"] != HashedCompassPoint("Draco") {
		t.Errorf("hash fallback should be deterministic")
	}
}

func TestDirectionPolicyIsConfigurable(t *testing.T) {
	p := DefaultDirectionPolicy()
	p.Defaults = map[string]string{"Leo": "East"}
	got := p.Extract("Leo tonight", []string{"Leo"})
	if got["Leo"] != "East" {
		t.Errorf("custom default ignored: %v", got)
	}
}
