package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SettingsRowID is the id of the singleton settings row.
const SettingsRowID = 1

type GlobalSettings struct {
	JackpotAmount             int64     `json:"jackpotAmount"`
	AccumulatedPool           int64     `json:"accumulatedPool"`
	DailyPrizeAmount          int64     `json:"dailyPrizeAmount"`
	TopBuyerPrize             int64     `json:"topBuyerPrize"`
	TicketPrice               int64     `json:"ticketPrice"`
	OfficialLotteryNameWeekly string    `json:"officialLotteryNameWeekly"`
	NextDrawDateWeekly        time.Time `json:"nextDrawDateWeekly"`
	GatewayAccessToken        string    `json:"gatewayAccessToken"`
	GatewayPublicKey          string    `json:"gatewayPublicKey"`
	AdminWhatsApp             string    `json:"adminWhatsApp"`
}

// DefaultSettings mirrors the values a fresh deployment starts with.
func DefaultSettings(now time.Time) GlobalSettings {
	return GlobalSettings{
		JackpotAmount:             50000000,
		AccumulatedPool:           1250000,
		DailyPrizeAmount:          200000,
		TopBuyerPrize:             50000,
		TicketPrice:               5000,
		OfficialLotteryNameWeekly: "Lotería de Boyacá",
		NextDrawDateWeekly:        now.Add(7 * 24 * time.Hour).UTC(),
		AdminWhatsApp:             "573001234567",
	}
}

// PublicSettings is the projection safe to hand to buyers.
type PublicSettings struct {
	JackpotAmount             int64     `json:"jackpotAmount"`
	AccumulatedPool           int64     `json:"accumulatedPool"`
	DailyPrizeAmount          int64     `json:"dailyPrizeAmount"`
	TopBuyerPrize             int64     `json:"topBuyerPrize"`
	TicketPrice               int64     `json:"ticketPrice"`
	OfficialLotteryNameWeekly string    `json:"officialLotteryNameWeekly"`
	NextDrawDateWeekly        time.Time `json:"nextDrawDateWeekly"`
	GatewayPublicKey          string    `json:"gatewayPublicKey,omitempty"`
	AdminWhatsApp             string    `json:"adminWhatsApp"`
}

func (s GlobalSettings) Public() PublicSettings {
	return PublicSettings{
		JackpotAmount:             s.JackpotAmount,
		AccumulatedPool:           s.AccumulatedPool,
		DailyPrizeAmount:          s.DailyPrizeAmount,
		TopBuyerPrize:             s.TopBuyerPrize,
		TicketPrice:               s.TicketPrice,
		OfficialLotteryNameWeekly: s.OfficialLotteryNameWeekly,
		NextDrawDateWeekly:        s.NextDrawDateWeekly,
		GatewayPublicKey:          s.GatewayPublicKey,
		AdminWhatsApp:             s.AdminWhatsApp,
	}
}

type SettingsPatch struct {
	JackpotAmount             *int64     `json:"jackpotAmount,omitempty"`
	AccumulatedPool           *int64     `json:"accumulatedPool,omitempty"`
	DailyPrizeAmount          *int64     `json:"dailyPrizeAmount,omitempty"`
	TopBuyerPrize             *int64     `json:"topBuyerPrize,omitempty"`
	TicketPrice               *int64     `json:"ticketPrice,omitempty"`
	OfficialLotteryNameWeekly *string    `json:"officialLotteryNameWeekly,omitempty"`
	NextDrawDateWeekly        *time.Time `json:"nextDrawDateWeekly,omitempty"`
	GatewayAccessToken        *string    `json:"gatewayAccessToken,omitempty"`
	GatewayPublicKey          *string    `json:"gatewayPublicKey,omitempty"`
	AdminWhatsApp             *string    `json:"adminWhatsApp,omitempty"`
}

func (s GlobalSettings) Apply(p SettingsPatch) GlobalSettings {
	out := s
	if p.JackpotAmount != nil {
		out.JackpotAmount = *p.JackpotAmount
	}
	if p.AccumulatedPool != nil {
		out.AccumulatedPool = *p.AccumulatedPool
	}
	if p.DailyPrizeAmount != nil {
		out.DailyPrizeAmount = *p.DailyPrizeAmount
	}
	if p.TopBuyerPrize != nil {
		out.TopBuyerPrize = *p.TopBuyerPrize
	}
	if p.TicketPrice != nil {
		out.TicketPrice = *p.TicketPrice
	}
	if p.OfficialLotteryNameWeekly != nil {
		out.OfficialLotteryNameWeekly = *p.OfficialLotteryNameWeekly
	}
	if p.NextDrawDateWeekly != nil {
		out.NextDrawDateWeekly = p.NextDrawDateWeekly.UTC()
	}
	if p.GatewayAccessToken != nil {
		out.GatewayAccessToken = *p.GatewayAccessToken
	}
	if p.GatewayPublicKey != nil {
		out.GatewayPublicKey = *p.GatewayPublicKey
	}
	if p.AdminWhatsApp != nil {
		out.AdminWhatsApp = *p.AdminWhatsApp
	}
	return out
}

// SettingsRow persists GlobalSettings as a single JSON document.
type SettingsRow struct {
	bun.BaseModel `bun:"table:settings"`

	ID           int64          `bun:"id,pk"`
	SettingsData map[string]any `bun:"settings_data,type:jsonb"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero"`
}
