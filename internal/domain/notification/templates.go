package notification

import (
	"sort"
	"strings"
)

// Template keys
const (
	TemplateProductPurchase       = "product_purchase"
	TemplateProductRenewal        = "product_renewal"
	TemplateProductAutoRenewal    = "product_auto_renewal"
	TemplateProductsExpired       = "products_expired"
	TemplatePurchaseRequest       = "purchase_request"
	TemplateCreditPurchaseRequest = "credit_purchase_request"
	TemplateCreditPurchase        = "credit_purchase"
	TemplatePurchaseApproved      = "purchase_approved"
	TemplatePurchaseRejected      = "purchase_rejected"
)

var defaultTemplates = map[string]Template{
	TemplateProductPurchase: {
		Title: "Purchase Successful",
		Body:  "You now have access to {product_name} until {expiry_date}.",
	},
	TemplateProductRenewal: {
		Title: "Access Renewed",
		Body:  "Your access to {product_name} has been renewed until {expiry_date}.",
	},
	TemplateProductAutoRenewal: {
		Title: "Product Auto-Renewed",
		Body:  "{product_name} was renewed automatically for {credit_amount} credits. Access continues until {expiry_date}.",
	},
	TemplateProductsExpired: {
		Title: "Products Expired",
		Body:  "Some of your products have expired: {product_name}",
	},
	TemplatePurchaseRequest: {
		Title: "New Purchase Request",
		Body:  "User {user_name} has requested to purchase {item_name}",
	},
	TemplateCreditPurchaseRequest: {
		Title: "New Credit Purchase Request",
		Body:  "User {user_name} has requested to purchase {item_name}",
	},
	TemplateCreditPurchase: {
		Title: "Credits Added",
		Body:  "{credit_amount} credits have been added to your account. They expire on {expiry_date}.",
		Relay: true,
	},
	TemplatePurchaseApproved: {
		Title: "Purchase Approved",
		Body:  "Your purchase of {product_name} has been approved",
		Relay: true,
	},
	TemplatePurchaseRejected: {
		Title: "Purchase Rejected",
		Body:  "Your purchase of {item_name} has been rejected",
	},
}

// DefaultTemplate returns the built-in template for key
func DefaultTemplate(key string) (Template, bool) {
	t, ok := defaultTemplates[key]
	if ok {
		t.Key = key
	}
	return t, ok
}

// TemplateKeys lists every known template key in a stable order
func TemplateKeys() []string {
	keys := make([]string, 0, len(defaultTemplates))
	for k := range defaultTemplates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render substitutes {name} placeholders. Unknown placeholders are left as is.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
