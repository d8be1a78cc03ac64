package dispatch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/trackfleet/logistics-core/internal/domain"
)

func TestSmsText_ShortMessageUntouched(t *testing.T) {
	n := &domain.Notification{Title: "Invoice", Message: "Invoice INV-1 is due.", Priority: domain.PriorityNormal}
	assert.Equal(t, "Invoice: Invoice INV-1 is due.", smsText(n))
}

func TestSmsText_UrgentPrefix(t *testing.T) {
	n := &domain.Notification{Title: "License", Message: "Expired.", Priority: domain.PriorityUrgent}
	assert.Equal(t, "URGENT: License: Expired.", smsText(n))
}

func TestSmsText_TruncatesOnRuneBoundaryWithinSegment(t *testing.T) {
	// Two-byte runes ensure a naive byte slice would land mid-sequence.
	n := &domain.Notification{
		Title:    "Bakım",
		Message:  strings.Repeat("ş", 200),
		Priority: domain.PriorityNormal,
	}

	got := smsText(n)

	assert.LessOrEqual(t, len(got), 160)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
