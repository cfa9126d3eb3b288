package domain

import "regexp"

// SubscriberPrefix is the international dialling prefix every subscriber
// identifier carries, e.g. 00254712345678.
const SubscriberPrefix = "00"

var subscriberPattern = regexp.MustCompile(`^00[1-9][0-9]{9,13}$`)

// ValidSubscriber reports whether s is a well-formed subscriber identifier.
func ValidSubscriber(s string) bool {
	return subscriberPattern.MatchString(s)
}
