package config

// CreditPack is a purchasable credit bundle. The catalogue is static;
// payment providers reference packs by ID.
type CreditPack struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Credits       int    `json:"credits"`
	BonusCredits  int    `json:"bonus_credits"`
	PriceUSDCents int    `json:"price_usd_cents"`
	Description   string `json:"description"`
	Popular       bool   `json:"popular"`
}

// TotalCredits returns base plus bonus credits.
func (p CreditPack) TotalCredits() int {
	return p.Credits + p.BonusCredits
}

// CreditPacks returns the purchase catalogue in display order.
func CreditPacks() []CreditPack {
	return []CreditPack{
		{
			ID:            "starter",
			Name:          "Starter",
			Credits:       100,
			BonusCredits:  0,
			PriceUSDCents: 199,
			Description:   "Try it out",
		},
		{
			ID:            "basic",
			Name:          "Basic",
			Credits:       500,
			BonusCredits:  50,
			PriceUSDCents: 799,
			Description:   "Great for regular use",
		},
		{
			ID:            "popular",
			Name:          "Popular",
			Credits:       1500,
			BonusCredits:  300,
			PriceUSDCents: 1999,
			Description:   "Most popular choice",
			Popular:       true,
		},
		{
			ID:            "pro",
			Name:          "Pro",
			Credits:       3500,
			BonusCredits:  1000,
			PriceUSDCents: 3999,
			Description:   "For power users",
		},
		{
			ID:            "enterprise",
			Name:          "Enterprise",
			Credits:       8000,
			BonusCredits:  3000,
			PriceUSDCents: 7999,
			Description:   "Maximum value",
		},
	}
}

// FindCreditPack returns the pack with the given ID, or false.
func FindCreditPack(id string) (CreditPack, bool) {
	for _, p := range CreditPacks() {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPack{}, false
}
