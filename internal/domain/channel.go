package domain

// Channel identifies a mobile-money provider integration.
type Channel string

const (
	ChannelMpesa       Channel = "mpesa"
	ChannelAirtelMoney Channel = "airtel_money"
)

func (c Channel) Valid() bool {
	return c == ChannelMpesa || c == ChannelAirtelMoney
}

// Outcome is the payment result reported by a webhook delivery.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

func (o Outcome) Valid() bool {
	return o == OutcomeCompleted || o == OutcomeFailed || o == OutcomePending
}

// Status maps an outcome to the registry state it drives. Pending drives none.
func (o Outcome) Status() (Status, bool) {
	switch o {
	case OutcomeCompleted:
		return StatusCompleted, true
	case OutcomeFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}
