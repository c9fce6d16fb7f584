package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Email is a rendered message ready for a transport.
type Email struct {
	To      string
	Subject string
	Body    string
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"money": func(cents int64) string { return fmt.Sprintf("$%d.%02d", cents/100, cents%100) },
}

func mustTemplate(subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New("subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New("body").Funcs(funcs).Parse(body)),
	}
}

var templates = map[Kind]emailTemplate{
	KindPaymentLink: mustTemplate(
		`Complete Your Locker Reservation - Prep Doctors`,
		`Hi {{.Name}},

Your reservation for Locker #{{.LockerNumber}} from {{.StartDate}} to {{.EndDate}} is waiting for payment.
Total due: {{money .Amount}}

Complete your payment here: {{.PaymentURL}}

The link expires in 24 hours.
`),
	KindWelcome: mustTemplate(
		`Welcome! Your Locker #{{.LockerNumber}} is Ready - Prep Doctors`,
		`Hi {{.Name}},

Your payment was received. Locker #{{.LockerNumber}} is yours from {{.StartDate}} to {{.EndDate}}.
Please pick up your key at the front desk.
`),
	KindExpiryReminder: mustTemplate(
		`Your Locker Rental Ends Tomorrow - Prep Doctors`,
		`Hi {{.Name}},

Your rental of Locker #{{.LockerNumber}} ends on {{.EndDate}}.
Please empty the locker and return your key to receive your deposit back.
`),
	KindLockerAvailable: mustTemplate(
		`Locker #{{.LockerNumber}} Now Available - {{.WaitlistCount}} on Waitlist`,
		`Locker #{{.LockerNumber}} is available again.
{{if .PreviousRenter}}Previous renter: {{.PreviousRenter}}{{if .PreviousRenterEmail}} <{{.PreviousRenterEmail}}>{{end}}
{{end}}{{if .EndDate}}Rental ended: {{.EndDate}}
{{end}}People on the waitlist: {{.WaitlistCount}}
`),
	KindDepositRefund: mustTemplate(
		`Key Deposit Refund Request - Locker #{{.LockerNumber}} - {{.Name}}`,
		`A key deposit refund has been requested for the following student. Please initiate the refund through finance.

Student name: {{.Name}}
Student email: {{.RenterEmail}}
Locker: #{{.LockerNumber}}
Rental period: {{.StartDate}} to {{.EndDate}}
Deposit amount: {{money .Amount}}
`),
}

// Render builds the email for msg.
func Render(msg Message) (Email, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return Email{}, fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	if msg.Name == "" {
		msg.Name = "there"
	}
	var subj, body bytes.Buffer
	if err := tpl.subject.Execute(&subj, msg); err != nil {
		return Email{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, msg); err != nil {
		return Email{}, fmt.Errorf("render body: %w", err)
	}
	return Email{To: msg.To, Subject: subj.String(), Body: body.String()}, nil
}
