package dispatch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// Email and SMS rendering is parameterised by notification type. Templates
// are deliberately plain text; HTML mail is the provider's concern.

func emailSubject(n *domain.Notification) string {
	switch n.Type {
	case domain.TypeInvoiceGenerated:
		return "New invoice: " + n.Title
	case domain.TypePaymentReminder:
		return "Payment reminder: " + n.Title
	case domain.TypePaymentOverdue:
		return "OVERDUE: " + n.Title
	case domain.TypeLicenseExpiry, domain.TypeDocumentExpiry:
		return "Action required: " + n.Title
	case domain.TypeDailyDigest:
		return "Your daily summary"
	case domain.TypeSystemAlert:
		return "[Alert] " + n.Title
	default:
		return n.Title
	}
}

func emailBody(n *domain.Notification) string {
	var b strings.Builder
	b.WriteString(n.Message)
	if len(n.Data) > 0 {
		b.WriteString("\n\n")
		for k, v := range n.Data {
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
	}
	b.WriteString("\n-- TrackFleet")
	return b.String()
}

// smsText renders the compact form, truncated to a single segment.
func smsText(n *domain.Notification) string {
	text := n.Title + ": " + n.Message
	if n.Priority == domain.PriorityUrgent {
		text = "URGENT: " + text
	}
	const maxLen = 160
	const ellipsis = "..."
	if len(text) > maxLen {
		// Cut on a rune boundary so a multi-byte character is never
		// split, and leave room for the ellipsis inside the segment.
		cut := maxLen - len(ellipsis)
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + ellipsis
	}
	return text
}
