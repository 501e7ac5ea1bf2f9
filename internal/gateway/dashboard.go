package gateway

import (
	"sort"
	"strings"
	"time"

	"shopcore/internal/domain"
)

// ProductSales is one row of the best-seller ranking.
type ProductSales struct {
	ProductName string  `json:"productName"`
	TotalSold   float64 `json:"totalSold"`
}

// DashboardStats is the admin dashboard summary. MonthlyData holds the
// order count per month of the current year, January first.
type DashboardStats struct {
	TotalOrders int            `json:"totalOrders"`
	TotalSales  float64        `json:"totalSales"`
	MonthlyData []int          `json:"monthlyData"`
	TopProducts []ProductSales `json:"topProducts"`
}

const topProductCount = 5

// Dashboard aggregates order and customer-order data into the summary
// figures. Reads go through List, so the caller sees stats over exactly
// the rows their role can read.
func (g *Gateway) Dashboard(p domain.Principal) (*DashboardStats, error) {
	orders, err := g.List(p, domain.ColOrder, "")
	if err != nil {
		return nil, err
	}
	customerOrders, err := g.List(p, domain.ColCustomerOrder, "")
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalOrders: len(orders),
		MonthlyData: make([]int, 12),
		TopProducts: []ProductSales{},
	}

	year := g.now().UTC().Year()
	for _, order := range orders {
		if status, _ := order["paymentStatus"].(string); strings.EqualFold(status, "paid") {
			stats.TotalSales += numberOf(order["totalAmount"])
		}
		raw, _ := order[domain.FieldCreatedAt].(string)
		created, err := time.Parse(time.RFC3339Nano, raw)
		if err == nil && created.UTC().Year() == year {
			stats.MonthlyData[created.UTC().Month()-1]++
		}
	}

	sold := make(map[string]float64)
	for _, order := range customerOrders {
		items, _ := order["items"].([]any)
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := item["productName"].(string)
			if name == "" {
				continue
			}
			sold[name] += numberOf(item["quantity"])
		}
	}
	for name, total := range sold {
		stats.TopProducts = append(stats.TopProducts, ProductSales{ProductName: name, TotalSold: total})
	}
	sort.Slice(stats.TopProducts, func(i, j int) bool {
		if stats.TopProducts[i].TotalSold != stats.TopProducts[j].TotalSold {
			return stats.TopProducts[i].TotalSold > stats.TopProducts[j].TotalSold
		}
		return stats.TopProducts[i].ProductName < stats.TopProducts[j].ProductName
	})
	if len(stats.TopProducts) > topProductCount {
		stats.TopProducts = stats.TopProducts[:topProductCount]
	}
	return stats, nil
}

func numberOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
