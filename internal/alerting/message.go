package alerting

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	colorRed       = 16711680
	colorBlue      = 3447003
	colorLightBlue = 5814783
)

// Message is the webhook payload.
type Message struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is a Discord rich embed.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is one name/value cell of an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// AlertNotice 封装告警上下文。
type AlertNotice struct {
	Symbol       string
	AlertType    string
	Condition    string
	Threshold    string
	CurrentPrice float64
	// Content overrides the default message line.
	Content string
}

func (a AlertNotice) message(now time.Time) Message {
	content := a.Content
	if content == "" {
		content = fmt.Sprintf("Trading alert triggered for %s!", a.Symbol)
	}
	return Message{
		Content: content,
		Embeds: []Embed{{
			Title: fmt.Sprintf("🚨 Trading Alert: %s", a.Symbol),
			Color: colorRed,
			Fields: []EmbedField{
				{Name: "Alert Type", Value: capitalize(a.AlertType), Inline: true},
				{Name: "Condition", Value: capitalize(a.Condition), Inline: true},
				{Name: "Trigger Value", Value: a.Threshold, Inline: true},
				{Name: "Current Price", Value: FormatPrice(a.CurrentPrice), Inline: true},
			},
			Timestamp: now.UTC().Format(time.RFC3339),
		}},
	}
}

// TestNotice describes a manual test or forced alert.
type TestNotice struct {
	Symbol      string
	Price       float64
	Real        bool
	Condition   string
	TargetPrice *float64
	Content     string
}

// Message renders the notice as a webhook payload.
func (t TestNotice) Message(now time.Time) Message {
	content := fmt.Sprintf("🧪 Test Alert: %s at price $%s", t.Symbol, FormatPrice(t.Price))
	color := colorBlue
	description := "Test notification"
	if t.Real {
		color = colorRed
		description = "Price alert triggered"
		switch {
		case t.Content != "":
			content = t.Content
		default:
			target := "N/A"
			if t.TargetPrice != nil {
				target = FormatPrice(*t.TargetPrice)
			}
			content = fmt.Sprintf("🚨 @everyone PRICE ALERT: %s has %s %s!", t.Symbol, ConditionPhrase(t.Condition), target)
		}
	}

	fields := []EmbedField{
		{Name: "Symbol", Value: t.Symbol, Inline: true},
		{Name: "Current Price", Value: "$" + FormatPrice(t.Price), Inline: true},
	}
	if t.TargetPrice != nil {
		fields = append(fields, EmbedField{Name: "Target Price", Value: "$" + FormatPrice(*t.TargetPrice), Inline: true})
	}
	if t.Real {
		fields = append(fields, EmbedField{Name: "Condition", Value: t.Condition, Inline: true})
	}
	fields = append(fields, EmbedField{Name: "Time", Value: now.Format("2006-01-02 15:04:05")})

	return Message{
		Content: content,
		Embeds: []Embed{{
			Title:       fmt.Sprintf("%s Alert", t.Symbol),
			Description: description,
			Color:       color,
			Fields:      fields,
		}},
	}
}

// VerificationMessage builds the webhook connectivity check payload.
func VerificationMessage(testMessage, timestamp string) Message {
	if testMessage == "" {
		testMessage = "Discord webhook verification"
	}
	return Message{
		Content: fmt.Sprintf("🔍 WEBHOOK TEST: %s (Time: %s)", testMessage, timestamp),
		Embeds: []Embed{{
			Title:       "Discord Webhook Verification",
			Description: "This is a test to verify that Discord webhook is properly configured.",
			Color:       colorLightBlue,
			Fields: []EmbedField{
				{Name: "Test Info", Value: testMessage, Inline: true},
				{Name: "Timestamp", Value: timestamp, Inline: true},
			},
		}},
	}
}

// ConditionPhrase renders an alert condition for humans.
func ConditionPhrase(condition string) string {
	switch condition {
	case "above":
		return "risen above"
	case "below":
		return "fallen below"
	case "crosses":
		return "crossed"
	case "":
		return "reached"
	default:
		return condition
	}
}

// FormatPrice prints the shortest exact decimal form of a price.
func FormatPrice(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return strconv.FormatFloat(price, 'f', -1, 64)
	}
	return decimal.NewFromFloat(price).String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
