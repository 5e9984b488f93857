// Package templates renders the transactional email bodies. Rendering is a
// pure function of the job payload snapshot; it never reads live order or
// event state.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"strings"

	"lokumail/internal/types"
)

//go:embed layouts/*.html.tmpl
var layoutFiles embed.FS

var layouts = template.Must(template.ParseFS(layoutFiles, "layouts/*.html.tmpl"))

const defaultCurrency = "CAD"

// orderEmailData is the view model both layouts render. Prices are
// pre-formatted so the templates stay free of formatting logic.
type orderEmailData struct {
	Name             string
	ItemName         string
	Quantity         int
	Currency         string
	PricePerItem     string
	TotalPrice       string
	EventDate        string
	LocationDisplay  string
	PickupTimeSlot   string
	EtransferEnabled bool
	EtransferEmail   string
}

// Render produces the subject and HTML body for a job's email. Unknown job
// types are an error; the worker treats that as a non-retryable failure.
func Render(jobType types.JobType, payload *types.OrderEmailPayload) (subject string, html string, err error) {
	if payload == nil {
		return "", "", fmt.Errorf("render %s: nil payload", jobType)
	}

	data := buildData(payload)

	var layout string
	switch jobType {
	case types.JobTypeOrderConfirmation:
		layout = "order_confirmation.html.tmpl"
		subject = fmt.Sprintf("Your %s Pre-Order is Confirmed", payload.ItemName)
	case types.JobTypePickupReminder:
		layout = "pickup_reminder.html.tmpl"
		subject = fmt.Sprintf("Pickup Reminder - Your %s Order", payload.ItemName)
	default:
		return "", "", fmt.Errorf("unknown email job type %q", jobType)
	}

	var buf strings.Builder
	if err := layouts.ExecuteTemplate(&buf, layout, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", jobType, err)
	}
	return subject, buf.String(), nil
}

func buildData(p *types.OrderEmailPayload) orderEmailData {
	currency := p.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	locationDisplay := p.PickupLocation
	if p.Address != "" {
		locationDisplay = fmt.Sprintf("%s - %s", p.PickupLocation, p.Address)
	}

	etransferEmail := strings.TrimSpace(p.EtransferEmail)

	return orderEmailData{
		Name:             p.Name,
		ItemName:         p.ItemName,
		Quantity:         p.Quantity,
		Currency:         currency,
		PricePerItem:     fmt.Sprintf("%.2f", p.PricePerItem),
		TotalPrice:       fmt.Sprintf("%.2f", p.TotalPrice),
		EventDate:        p.EventDate,
		LocationDisplay:  locationDisplay,
		PickupTimeSlot:   p.PickupTimeSlot,
		EtransferEnabled: p.EtransferEnabled && etransferEmail != "",
		EtransferEmail:   etransferEmail,
	}
}
