// Package gateway selects the mobile-money channel for a subscriber.
package gateway

import (
	"sort"
	"strings"

	"premium-collections/internal/domain"
)

// Rules is the routing configuration. Prefixes are matched against the
// national number, i.e. the digits after the international prefix and the
// country code.
type Rules struct {
	CountryCodes    []string
	ChannelA        []string
	ChannelB        []string
	CountryDefaults map[string]domain.Channel
	Fallback        domain.Channel
}

// Router maps subscriber identifiers to channels. It is immutable after
// construction and safe for concurrent use.
type Router struct {
	countryCodes    []string
	channelA        []string
	channelB        []string
	countryDefaults map[string]domain.Channel
	fallback        domain.Channel
}

func NewRouter(rules Rules) *Router {
	r := &Router{
		countryCodes:    longestFirst(rules.CountryCodes),
		channelA:        longestFirst(rules.ChannelA),
		channelB:        longestFirst(rules.ChannelB),
		countryDefaults: make(map[string]domain.Channel, len(rules.CountryDefaults)),
		fallback:        rules.Fallback,
	}
	for code, ch := range rules.CountryDefaults {
		r.countryDefaults[code] = ch
	}
	if !r.fallback.Valid() {
		r.fallback = domain.ChannelAirtelMoney
	}
	return r
}

// Route never fails: a subscriber outside every configured prefix set gets
// its country default, and an unknown country gets the fallback channel.
func (r *Router) Route(subscriber string) domain.Channel {
	number := strings.TrimPrefix(strings.TrimPrefix(subscriber, "+"), domain.SubscriberPrefix)

	country := ""
	for _, code := range r.countryCodes {
		if strings.HasPrefix(number, code) {
			country = code
			break
		}
	}
	if country == "" {
		return r.fallback
	}

	national := strings.TrimPrefix(number, country)
	national = strings.TrimPrefix(national, "0")

	if matchAny(national, r.channelA) {
		return domain.ChannelMpesa
	}
	if matchAny(national, r.channelB) {
		return domain.ChannelAirtelMoney
	}
	if ch, ok := r.countryDefaults[country]; ok {
		return ch
	}
	return r.fallback
}

func matchAny(national string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(national, p) {
			return true
		}
	}
	return false
}

func longestFirst(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
