package render

import "time"

// Tier is one praise rule. Tiers are evaluated in order and the last one
// whose Match returns true supplies the phrase.
type Tier struct {
	Match  func(c int, now time.Time, coin func() bool) bool
	Phrase string
}

// Tiers is the default ascending praise list.
var Tiers = []Tier{
	{func(int, time.Time, func() bool) bool { return true }, "Hi."},
	{func(c int, _ time.Time, _ func() bool) bool { return c > 2 }, "Cool."},
	{func(c int, _ time.Time, _ func() bool) bool { return c > 6 }, "Nice."},
	{func(c int, _ time.Time, _ func() bool) bool { return c > 10 }, "Wow. :star:"},
	{func(c int, _ time.Time, _ func() bool) bool { return c >= 12 }, "Huzzah! :star2:"},
	{func(c int, _ time.Time, coin func() bool) bool { return c >= 12 && coin() }, "Huzzah! :heart_eyes:"},
	{func(c int, now time.Time, _ func() bool) bool { return c >= 14 && now.Hour() < 6 }, "Thank you night owl! :full_moon_with_face:"},
}

// Praise picks the phrase for c changes. Every tier is evaluated.
func Praise(tiers []Tier, c int, now time.Time, coin func() bool) string {
	out := ""
	for _, t := range tiers {
		if t.Match(c, now, coin) {
			out = t.Phrase
		}
	}
	return out
}
