package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lokumail/internal/types"
)

func samplePayload() *types.OrderEmailPayload {
	return &types.OrderEmailPayload{
		Name:             "Nimal Perera",
		ItemName:         "Lamprais",
		Quantity:         3,
		PickupLocation:   "Scarborough",
		PickupTimeSlot:   "12:00 - 13:00",
		TotalPrice:       54.0,
		PricePerItem:     18.0,
		Currency:         "CAD",
		Address:          "123 Markham Rd",
		EventDate:        "Saturday, October 3",
		EtransferEnabled: true,
		EtransferEmail:   "pay@lokucaters.com",
	}
}

func TestRenderOrderConfirmation(t *testing.T) {
	subject, html, err := Render(types.JobTypeOrderConfirmation, samplePayload())
	require.NoError(t, err)

	assert.Equal(t, "Your Lamprais Pre-Order is Confirmed", subject)
	assert.Contains(t, html, "Order Confirmed!")
	assert.Contains(t, html, "Nimal Perera")
	assert.Contains(t, html, "Lamprais x 3")
	assert.Contains(t, html, "CAD $18.00")
	assert.Contains(t, html, "CAD $54.00")
	assert.Contains(t, html, "Saturday, October 3")
	assert.Contains(t, html, "12:00 - 13:00")
	assert.Contains(t, html, "Scarborough - 123 Markham Rd")
}

func TestRenderPickupReminder(t *testing.T) {
	payload := samplePayload()
	payload.Reminder = true

	subject, html, err := Render(types.JobTypePickupReminder, payload)
	require.NoError(t, err)

	assert.Equal(t, "Pickup Reminder - Your Lamprais Order", subject)
	assert.Contains(t, html, "Pickup Reminder!")
	assert.Contains(t, html, "If you have not yet sent your e-Transfer payment")
	assert.NotContains(t, html, "If you would like to pay by e-Transfer")
}

func TestRenderEtransferSection(t *testing.T) {
	payload := samplePayload()
	_, html, err := Render(types.JobTypeOrderConfirmation, payload)
	require.NoError(t, err)
	assert.Contains(t, html, "Payment by e-Transfer")
	assert.Contains(t, html, "pay@lokucaters.com")
	assert.Contains(t, html, "If you would like to pay by e-Transfer")

	// Disabled entirely.
	payload.EtransferEnabled = false
	_, html, err = Render(types.JobTypeOrderConfirmation, payload)
	require.NoError(t, err)
	assert.NotContains(t, html, "Payment by e-Transfer")

	// Enabled flag without an address also hides the section.
	payload.EtransferEnabled = true
	payload.EtransferEmail = "   "
	_, html, err = Render(types.JobTypeOrderConfirmation, payload)
	require.NoError(t, err)
	assert.NotContains(t, html, "Payment by e-Transfer")
}

func TestRenderLocationWithoutAddress(t *testing.T) {
	payload := samplePayload()
	payload.Address = ""

	_, html, err := Render(types.JobTypeOrderConfirmation, payload)
	require.NoError(t, err)
	assert.Contains(t, html, ">Scarborough<")
	assert.NotContains(t, html, "Scarborough - ")
}

func TestRenderDefaultsCurrency(t *testing.T) {
	payload := samplePayload()
	payload.Currency = ""

	_, html, err := Render(types.JobTypeOrderConfirmation, payload)
	require.NoError(t, err)
	assert.Contains(t, html, "CAD $54.00")
}

func TestRenderEscapesUserContent(t *testing.T) {
	payload := samplePayload()
	payload.Name = `<script>alert("x")</script>`

	_, html, err := Render(types.JobTypeOrderConfirmation, payload)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestRenderUnknownTypeFails(t *testing.T) {
	_, _, err := Render(types.JobType("newsletter"), samplePayload())
	assert.Error(t, err)
}

func TestRenderNilPayloadFails(t *testing.T) {
	_, _, err := Render(types.JobTypeOrderConfirmation, nil)
	assert.Error(t, err)
}
