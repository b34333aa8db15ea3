package checkout

import (
	"fmt"
	"strings"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
)

// FormatReceipt renders the plain text order summary the customer pastes
// into their payment or chat channel.
func FormatReceipt(o domain.OrderSnapshot) (string, error) {
	payLabel, err := o.PaymentMethod.Label()
	if err != nil {
		return "", err
	}
	feePct, err := o.PaymentMethod.FeePercent()
	if err != nil {
		return "", err
	}
	shipLabel, err := o.ShippingMethod.Label()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("🛒 ORDER REQUEST\n\n")

	b.WriteString("ITEMS:\n")
	for i, it := range o.Items {
		fmt.Fprintf(&b, "%d-%s (%s) [SKU: %s] [%s]=%s\n",
			i+1, it.Name, it.Weight, it.SKU, FormatMoney(it.UnitPrice), FormatMoney(it.LineTotal()))
	}

	b.WriteString("\nORDER SUMMARY\n")
	b.WriteString("-------------\n")
	fmt.Fprintf(&b, "Total Items: %d\n", len(o.Items))
	fmt.Fprintf(&b, "Subtotal: %s\n", FormatMoney(o.Subtotal))
	fmt.Fprintf(&b, "Shipping (%s): %s\n", shipLabel, FormatMoney(o.Shipping))
	fmt.Fprintf(&b, "%s Fee %d%% = %s\n", payLabel, feePct, FormatMoney(o.PaymentFee))
	fmt.Fprintf(&b, "Total due = %s\n\n", FormatMoney(o.Total))

	if o.ShippingMethod == domain.ShippingOvernight {
		b.WriteString("OVERNIGHT SHIPPING ORDER SELECTED ✓\n")
	} else {
		b.WriteString("STANDARD SHIPPING ORDER SELECTED ✓\n")
	}
	fmt.Fprintf(&b, "PAYMENT METHOD: %s ✓\n", strings.ToUpper(payLabel))

	a := o.ShippingAddress
	b.WriteString("SHIPPING ADDRESS:\n")
	fmt.Fprintf(&b, "%s %s\n", a.FirstName, a.LastName)
	b.WriteString(a.Address1)
	if a.Address2 != "" {
		b.WriteString(", " + a.Address2)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s, %s %s\n\n", a.City, a.State, a.ZipCode)

	fmt.Fprintf(&b, "Order Number: #%s", o.OrderNumber)
	return b.String(), nil
}
