package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"fintrack/internal/finance"
)

const maxUserIDLength = 128

// parseMonth reads ?month=YYYY-MM, falling back to the month of now.
func parseMonth(r *http.Request, now time.Time) time.Time {
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if t, err := time.Parse("2006-01", v); err == nil {
			return t
		}
	}
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// requestUserID resolves the user id from, in order, the explicit value
// (request body), the userId query parameter and the X-User-ID header.
// Invalid UTF-8 is returned untouched so the store rejects it instead of
// sanitizing it into another user's id.
func requestUserID(r *http.Request, explicit string) string {
	for _, v := range []string{explicit, r.URL.Query().Get("userId"), r.Header.Get("X-User-ID")} {
		if !utf8.ValidString(v) {
			return v
		}
		if v = sanitizeInput(v); v != "" {
			return v
		}
	}
	return ""
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	if len(result) > maxUserIDLength {
		cut := maxUserIDLength
		for cut > 0 && !utf8.RuneStart(result[cut]) {
			cut--
		}
		result = result[:cut]
	}
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// formatAmount renders a total with two decimals and a thousands separator.
func formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

var templateFuncs = template.FuncMap{
	"amount": formatAmount,
	"total": func(s finance.Summary, name string) string {
		return formatAmount(s[name])
	},
}
