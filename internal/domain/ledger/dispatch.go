package ledger

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/creditshop/creditshop-api/internal/domain/notification"
	"github.com/creditshop/creditshop-api/internal/pkg/logger"
	"github.com/creditshop/creditshop-api/internal/pkg/metrics"
)

const expiryDateLayout = "Jan 2, 2006"

// dispatch runs the side effects of committed events. Failures are logged
// and never reach the caller.
func (s *Service) dispatch(ctx context.Context, evs []Event) {
	if len(evs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, ev := range evs {
		metrics.IncLedgerEvent(ev.Type)
		switch {
		case ev.Type == EventCreditsExpired:
			metrics.AddCreditsExpired(-ev.Credits)
		case ev.Credits > 0:
			metrics.AddCreditsIssued(ev.Credits)
		case ev.Credits < 0:
			metrics.AddCreditsConsumed(-ev.Credits)
		}

		if err := s.publisher.Publish(ctx, ev.Type, ev); err != nil {
			logger.LogWarn(ctx, "failed to publish ledger event", "error", err.Error(), "event", ev.Type, "user_id", ev.UserID.String())
		}
	}

	if s.notifier == nil {
		return
	}
	for _, n := range notices(evs) {
		if err := s.notifier.Notify(ctx, n); err != nil {
			logger.LogWarn(ctx, "failed to notify", "error", err.Error(), "template", n.Template, "user_id", n.UserID.String())
		}
	}
	for _, ev := range evs {
		if ev.PurchaseID == nil || (ev.Type != EventPurchaseApproved && ev.Type != EventPurchaseRejected) {
			continue
		}
		if err := s.notifier.ResolveAction(ctx, *ev.PurchaseID); err != nil {
			logger.LogWarn(ctx, "failed to resolve admin notices", "error", err.Error(), "purchase_id", ev.PurchaseID.String())
		}
	}
}

// notices maps events to notifications. Expired grants are batched into one
// notice per user.
func notices(evs []Event) []notification.Notice {
	var (
		out     []notification.Notice
		expired = map[uuid.UUID][]string{}
		order   []uuid.UUID
	)

	for _, ev := range evs {
		switch ev.Type {
		case EventProductPurchased:
			out = append(out, userNotice(ev, notification.KindPurchase, notification.TemplateProductPurchase, map[string]string{
				"product_name": ev.ItemName,
				"expiry_date":  formatExpiry(ev),
			}))

		case EventProductRenewed:
			out = append(out, userNotice(ev, notification.KindPurchase, notification.TemplateProductRenewal, map[string]string{
				"product_name": ev.ItemName,
				"expiry_date":  formatExpiry(ev),
			}))

		case EventProductAutoRenewed:
			out = append(out, userNotice(ev, notification.KindSystem, notification.TemplateProductAutoRenewal, map[string]string{
				"product_name":  ev.ItemName,
				"credit_amount": strconv.FormatInt(-ev.Credits, 10),
				"expiry_date":   formatExpiry(ev),
			}))

		case EventProductExpired:
			if _, seen := expired[ev.UserID]; !seen {
				order = append(order, ev.UserID)
			}
			expired[ev.UserID] = append(expired[ev.UserID], ev.ItemName)

		case EventPurchaseRequested:
			tmpl := notification.TemplatePurchaseRequest
			if ev.Kind == KindCreditPackage {
				tmpl = notification.TemplateCreditPurchaseRequest
			}
			name := ev.UserName
			if name == "" {
				name = ev.UserID.String()
			}
			out = append(out, notification.Notice{
				UserID:         ev.UserID,
				Audience:       notification.AudienceAdmin,
				Kind:           notification.KindPurchase,
				Template:       tmpl,
				Vars:           map[string]string{"user_name": name, "item_name": ev.ItemName},
				ActionRequired: true,
				PurchaseID:     ev.PurchaseID,
			})

		case EventPurchaseApproved:
			var n notification.Notice
			if ev.Kind == KindCreditPackage {
				n = userNotice(ev, notification.KindSystem, notification.TemplateCreditPurchase, map[string]string{
					"credit_amount": strconv.FormatInt(ev.Credits, 10),
					"expiry_date":   formatExpiry(ev),
				})
			} else {
				n = userNotice(ev, notification.KindSystem, notification.TemplatePurchaseApproved, map[string]string{
					"product_name": ev.ItemName,
					"expiry_date":  formatExpiry(ev),
				})
			}
			out = append(out, n)

		case EventPurchaseRejected:
			out = append(out, userNotice(ev, notification.KindSystem, notification.TemplatePurchaseRejected, map[string]string{
				"item_name": ev.ItemName,
			}))
		}
	}

	for _, userID := range order {
		out = append(out, notification.Notice{
			UserID:   userID,
			Audience: notification.AudienceUser,
			Kind:     notification.KindExpiry,
			Template: notification.TemplateProductsExpired,
			Vars:     map[string]string{"product_name": strings.Join(expired[userID], ", ")},
		})
	}
	return out
}

func userNotice(ev Event, kind notification.Kind, tmpl string, vars map[string]string) notification.Notice {
	return notification.Notice{
		UserID:     ev.UserID,
		Audience:   notification.AudienceUser,
		Kind:       kind,
		Template:   tmpl,
		Vars:       vars,
		PurchaseID: ev.PurchaseID,
	}
}

func formatExpiry(ev Event) string {
	if ev.ExpiryDate == nil {
		return ""
	}
	return ev.ExpiryDate.Format(expiryDateLayout)
}
