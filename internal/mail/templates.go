package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

var verificationHTML = template.Must(template.New("verification").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Welcome to ScyDB{{if .Name}}, {{.Name}}{{end}}!</h2>
  <p>Thank you for signing up. Please verify your email address to complete your registration.</p>
  <div style="margin: 30px 0; text-align: center;">
    <a href="{{.Link}}" style="background-color: #007bff; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">
      Verify Email Address
    </a>
  </div>
  <p>Or copy and paste this link into your browser:</p>
  <p style="word-break: break-all; color: #666;">{{.Link}}</p>
  <p style="color: #666; font-size: 14px;">
    This link will expire in 24 hours.<br>
    If you didn't create an account, please ignore this email.
  </p>
</div>
`))

var resetHTML = template.Must(template.New("reset").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Reset your password</h2>
  <p>Someone requested a password reset for your ScyDB account.</p>
  <div style="margin: 30px 0; text-align: center;">
    <a href="{{.Link}}" style="background-color: #007bff; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">
      Reset Password
    </a>
  </div>
  <p style="word-break: break-all; color: #666;">{{.Link}}</p>
  <p style="color: #666; font-size: 14px;">
    This link is valid for 30 minutes.<br>
    If you didn't forget your password, please ignore this email.
  </p>
</div>
`))

type linkData struct {
	Name string
	Link string
}

// VerificationLink is the frontend page that consumes a verification token.
func VerificationLink(frontendURL, token string) string {
	return frontendURL + "/pages/auth/verify-link.html?token=" + token
}

// ResetLink is the frontend page that consumes a reset token.
func ResetLink(frontendURL, token string) string {
	return frontendURL + "/pages/auth/reset-password.html?token=" + token
}

// VerificationEmail builds the address verification message.
func VerificationEmail(to, name, link string) (Message, error) {
	html, err := render(verificationHTML, linkData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "ScyDB - Verify Your Email Address",
		Text: fmt.Sprintf("Welcome to ScyDB! Please verify your email address by clicking the link below:\n\n%s\n\n"+
			"This link will expire in 24 hours.\n\nIf you didn't create an account, please ignore this email.", link),
		HTML: html,
	}, nil
}

// ResetEmail builds the password reset message.
func ResetEmail(to, link string) (Message, error) {
	html, err := render(resetHTML, linkData{Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "ScyDB - Your password reset token (valid for 30 min)",
		Text: fmt.Sprintf("Forgot your password? Open the link below to choose a new one:\n\n%s\n\n"+
			"If you didn't forget your password, please ignore this email.", link),
		HTML: html,
	}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
