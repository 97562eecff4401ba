package notification

import (
	"bytes"
	"fmt"
	"text/template"
)

// Templates sent by the reconciler.
const (
	TemplateWithdrawalFailed       = "withdrawal_failed"
	TemplatePayoutRefund           = "payout_refund"
	TemplatePayinBankwireSucceeded = "payin_bankwire_succeeded"
	TemplatePayinBankwireFailed    = "payin_bankwire_failed"
)

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]messageTemplate{
	TemplateWithdrawalFailed: mustTemplate(TemplateWithdrawalFailed,
		"Your withdrawal has failed",
		"Your withdrawal of {{.amount}} has failed. The bank returned this error: {{.error}}\n"+
			"The money has been put back in your account."),
	TemplatePayoutRefund: mustTemplate(TemplatePayoutRefund,
		"Your withdrawal has failed",
		"Your withdrawal of {{.amount}} has been returned by the bank. Reason: {{.reason}}\n"+
			"The money has been put back in your account."),
	TemplatePayinBankwireSucceeded: mustTemplate(TemplatePayinBankwireSucceeded,
		"Your bank wire has succeeded",
		"We have received your bank wire of {{.amount}}. The money is now available in your account."),
	TemplatePayinBankwireFailed: mustTemplate(TemplatePayinBankwireFailed,
		"Your bank wire has failed",
		"Your bank wire of {{.amount}} has failed. The bank returned this error: {{.error}}"),
}

func mustTemplate(name, subject, body string) messageTemplate {
	return messageTemplate{
		subject: template.Must(template.New(name + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(name + ".body").Option("missingkey=zero").Parse(body)),
	}
}

func render(name string, data map[string]string) (string, string, error) {
	t, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", name)
	}
	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return subject.String(), body.String(), nil
}
