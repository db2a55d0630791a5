package level

import "fmt"

// PaymentType is the kind of payment that clears a block point.
type PaymentType string

const (
	PaymentUpgrade PaymentType = "upgrade"
	PaymentSponsor PaymentType = "sponsor"
)

// BlockPoint is a receive count at which a member stops receiving until the
// assigned payment is made.
type BlockPoint struct {
	At     int
	Type   PaymentType
	Amount int
}

// Definition describes one level.
type Definition struct {
	Level       Level
	TotalHelps  int
	Amount      int
	BlockPoints []BlockPoint
	Next        Level
}

var catalog = [...]Definition{
	Tier1: {
		Level:      Tier1,
		TotalHelps: 3,
		Amount:     300,
		Next:       Tier2,
	},
	Tier2: {
		Level:      Tier2,
		TotalHelps: 9,
		Amount:     600,
		BlockPoints: []BlockPoint{
			{At: 4, Type: PaymentUpgrade, Amount: 1200},
			{At: 7, Type: PaymentSponsor, Amount: 900},
		},
		Next: Tier3,
	},
	Tier3: {
		Level:      Tier3,
		TotalHelps: 27,
		Amount:     1200,
		BlockPoints: []BlockPoint{
			{At: 10, Type: PaymentUpgrade, Amount: 2400},
			{At: 20, Type: PaymentSponsor, Amount: 1800},
		},
		Next: Tier4,
	},
	Tier4: {
		Level:      Tier4,
		TotalHelps: 81,
		Amount:     2400,
		BlockPoints: []BlockPoint{
			{At: 30, Type: PaymentUpgrade, Amount: 4800},
			{At: 60, Type: PaymentSponsor, Amount: 3600},
		},
		Next: Tier5,
	},
	Tier5: {
		Level:      Tier5,
		TotalHelps: 243,
		Amount:     4800,
		BlockPoints: []BlockPoint{
			{At: 100, Type: PaymentSponsor, Amount: 7200},
		},
	},
}

// Lookup returns the definition of l.
func Lookup(l Level) (Definition, error) {
	if !l.Valid() {
		return Definition{}, fmt.Errorf("%w: %d", ErrUnknownLevel, uint8(l))
	}
	return catalog[l], nil
}

func TotalHelps(l Level) (int, error) {
	def, err := Lookup(l)
	if err != nil {
		return 0, err
	}
	return def.TotalHelps, nil
}

func Amount(l Level) (int, error) {
	def, err := Lookup(l)
	if err != nil {
		return 0, err
	}
	return def.Amount, nil
}

// AmountOrDefault falls back to the first level's amount for unknown levels.
// Display-only; the engine uses Amount.
func AmountOrDefault(l Level) int {
	if amount, err := Amount(l); err == nil {
		return amount
	}
	return catalog[First].Amount
}

// Next returns the successor of l; false for the terminal or an unknown level.
func Next(l Level) (Level, bool) {
	def, err := Lookup(l)
	if err != nil || def.Next == Unknown {
		return Unknown, false
	}
	return def.Next, true
}

// BlockPoints returns the ascending receive counts at which l blocks.
func BlockPoints(l Level) []int {
	def, err := Lookup(l)
	if err != nil {
		return nil
	}
	points := make([]int, 0, len(def.BlockPoints))
	for _, bp := range def.BlockPoints {
		points = append(points, bp.At)
	}
	return points
}

// BlockPayment returns the payment assigned to the block point at count.
func BlockPayment(l Level, count int) (BlockPoint, bool) {
	def, err := Lookup(l)
	if err != nil {
		return BlockPoint{}, false
	}
	for _, bp := range def.BlockPoints {
		if bp.At == count {
			return bp, true
		}
	}
	return BlockPoint{}, false
}

func UpgradeAmount(l Level) (int, bool) {
	return paymentAmount(l, PaymentUpgrade)
}

func SponsorAmount(l Level) (int, bool) {
	return paymentAmount(l, PaymentSponsor)
}

func paymentAmount(l Level, t PaymentType) (int, bool) {
	def, err := Lookup(l)
	if err != nil {
		return 0, false
	}
	for _, bp := range def.BlockPoints {
		if bp.Type == t {
			return bp.Amount, true
		}
	}
	return 0, false
}
