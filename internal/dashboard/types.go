package dashboard

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
)

// Summary is the back-office overview for one service day.
type Summary struct {
	Date             string         `json:"date"`
	Timezone         string         `json:"timezone"`
	Orders           OrderSummary   `json:"orders"`
	Bookings         BookingSummary `json:"bookings"`
	ActivePromotions int64          `json:"active_promotions"`
}

// OrderSummary counts the day's orders. Count and Revenue exclude cancelled
// orders; ByStatus covers all of them.
type OrderSummary struct {
	Count    int64                       `json:"count"`
	Revenue  decimal.Decimal             `json:"revenue"`
	ByStatus map[enums.OrderStatus]int64 `json:"by_status"`
}

type BookingSummary struct {
	Count    int64                         `json:"count"`
	ByStatus map[enums.BookingStatus]int64 `json:"by_status"`
}
