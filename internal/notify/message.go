package notify

import (
	"fmt"
	"strings"

	"grocery-price/internal/model"
)

// AlertTitle heads every price drop message
const AlertTitle = "🏷️ Price Drop Alert!"

// FormatDrops renders drops as the plain text alert body
func FormatDrops(drops []model.PriceDrop) string {
	var b strings.Builder
	b.WriteString(AlertTitle)
	b.WriteString("\n\n")

	for _, d := range drops {
		name, storeName := "", ""
		if d.Product != nil {
			name = d.Product.Name
		}
		if d.Store != nil {
			storeName = d.Store.Name
		}
		fmt.Fprintf(&b, "%s - %s\n", name, storeName)
		fmt.Fprintf(&b, "Was: $%s → Now: $%s\n", d.PreviousPrice.StringFixed(2), d.CurrentPrice.StringFixed(2))
		fmt.Fprintf(&b, "💰 Save %.0f%% ($%s)\n\n", d.DropPercentage, d.DropAmount.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}
