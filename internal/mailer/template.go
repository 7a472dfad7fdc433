package mailer

import (
	"fmt"

	"github.com/osteele/liquid"
)

const confirmationTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Georgia, serif; color: #2b2b2b; max-width: 560px; margin: 0 auto; padding: 24px;">
  <h1 style="font-weight: normal; letter-spacing: 2px;">{{ brand_name }}</h1>
  <p>Thank you for joining our newsletter. Please confirm your subscription to start receiving our collections and stories.</p>
  <p style="margin: 32px 0;">
    <a href="{{ confirm_url }}" style="background: #1a1a1a; color: #ffffff; padding: 12px 28px; text-decoration: none; letter-spacing: 1px;">Confirm subscription</a>
  </p>
  <p style="font-size: 12px; color: #8a8a8a;">This link expires in 24 hours. If you did not request this, you can safely ignore this email.</p>
</body>
</html>`

var engine = liquid.NewEngine()

// RenderConfirmation produces the confirmation email body for the given
// brand and confirmation link.
func RenderConfirmation(brandName, confirmURL string) (string, error) {
	out, err := engine.ParseAndRenderString(confirmationTemplate, map[string]interface{}{
		"brand_name":  brandName,
		"confirm_url": confirmURL,
	})
	if err != nil {
		return "", fmt.Errorf("render confirmation template: %w", err)
	}
	return out, nil
}
