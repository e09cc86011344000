package notifications

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

type messageTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

type templateData struct {
	Product   string
	Recipient string
	Link      string
	Support   string
}

const htmlLayout = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; line-height: 1.5; color: #1f2933;">
{{template "content" .}}
<p><a href="{{.Link}}" style="display: inline-block; padding: 10px 18px; background: #2563eb; color: #ffffff; text-decoration: none; border-radius: 4px;">{{template "action" .}}</a></p>
<p style="font-size: 12px; color: #52606d;">If the button does not work, copy this address into your browser:<br>{{.Link}}</p>
{{if .Support}}<p style="font-size: 12px; color: #52606d;">Questions? Contact {{.Support}}.</p>{{end}}
</body>
</html>`

func mustTemplate(name, subject, text, content, action string) messageTemplate {
	html := htmltemplate.Must(htmltemplate.New(name).Parse(htmlLayout))
	htmltemplate.Must(html.New("content").Parse(content))
	htmltemplate.Must(html.New("action").Parse(action))

	return messageTemplate{
		subject: subject,
		text:    texttemplate.Must(texttemplate.New(name).Parse(text)),
		html:    html,
	}
}

var templates = map[Kind]messageTemplate{
	KindEmailConfirmation: mustTemplate(
		"email_confirmation",
		"Confirm your email address",
		`Hello,

Thanks for registering with {{.Product}}. Confirm that {{.Recipient}} is your email address by opening the link below:

{{.Link}}

If you did not create an account you can ignore this message and the registration will expire.
{{if .Support}}
Questions? Contact {{.Support}}.
{{end}}`,
		`<p>Hello,</p>
<p>Thanks for registering with {{.Product}}. Confirm that {{.Recipient}} is your email address.</p>
<p>If you did not create an account you can ignore this message and the registration will expire.</p>`,
		`Confirm email`,
	),
	KindConsent: mustTemplate(
		"parental_consent",
		"Your consent is needed for a new account",
		`Hello,

A child has asked to create a {{.Product}} account and named you as their parent or guardian. Review the request and approve or decline it here:

{{.Link}}

No account is created unless you approve. If you do nothing the request will expire.
{{if .Support}}
Questions? Contact {{.Support}}.
{{end}}`,
		`<p>Hello,</p>
<p>A child has asked to create a {{.Product}} account and named you as their parent or guardian.</p>
<p>No account is created unless you approve. If you do nothing the request will expire.</p>`,
		`Review request`,
	),
	KindPasswordReset: mustTemplate(
		"password_reset",
		"Reset your password",
		`Hello,

We received a request to reset the {{.Product}} password for {{.Recipient}}. Choose a new password here:

{{.Link}}

If you did not ask for a reset you can ignore this message.
{{if .Support}}
Questions? Contact {{.Support}}.
{{end}}`,
		`<p>Hello,</p>
<p>We received a request to reset the {{.Product}} password for {{.Recipient}}.</p>
<p>If you did not ask for a reset you can ignore this message.</p>`,
		`Reset password`,
	),
}
