package events

// Palette is the ordered set of color tokens calendars are drawn from.
var Palette = []string{
	"red",
	"pink",
	"light-purple",
	"purple",
	"blue",
	"light-blue",
	"cyan",
	"teal",
	"green",
	"light-green",
	"lime",
	"gold",
	"yellow",
	"amber",
	"light-orange",
	"orange",
	"brown",
	"grey",
	"white",
}

// ColorFor picks a palette token for the calendar at position seed. The
// linear-congruential step spreads neighbouring calendars across the
// palette instead of handing out adjacent shades.
func ColorFor(seed int) string {
	n := len(Palette)
	idx := ((5*seed+1)%n + n) % n
	return Palette[idx]
}

// ResolveColor returns the explicit color when set, else ColorFor(seed).
func ResolveColor(explicit string, seed int) string {
	if explicit != "" {
		return explicit
	}
	return ColorFor(seed)
}
