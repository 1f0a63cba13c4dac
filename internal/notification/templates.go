package notification

import (
	"fmt"
	"html"
	"time"
)

func amount(minor int64) string {
	return fmt.Sprintf("$%d.%02d", minor/100, minor%100)
}

func message(to, subject, text string) Message {
	return Message{
		To:      to,
		Subject: subject,
		Text:    text,
		HTML:    "<p>" + html.EscapeString(text) + "</p>",
	}
}

// PaymentSent tells a shoveller their payout went out.
func PaymentSent(to, name string, payout int64, jobID string) Message {
	return message(to, "You've been paid",
		fmt.Sprintf("Hi %s, %s for job %s is on its way to your payout account.", name, amount(payout), jobID))
}

// ReviewRequested asks the house owner to confirm the job.
func ReviewRequested(to, name, jobID string) Message {
	return message(to, "Your driveway is done",
		fmt.Sprintf("Hi %s, your shoveller marked job %s as completed. Please review and confirm it.", name, jobID))
}

func JobCanceled(to, name, jobID string) Message {
	return message(to, "Job canceled",
		fmt.Sprintf("Hi %s, job %s was canceled and the payment hold released.", name, jobID))
}

func ReferralBonusPaid(to, name string, bonus int64) Message {
	return message(to, "Referral bonus paid",
		fmt.Sprintf("Hi %s, one of your referrals completed their probation. %s was sent to your payout account.", name, amount(bonus)))
}

// PasswordReset carries the single-use reset link.
func PasswordReset(to, name, link string, lifetime time.Duration) Message {
	return message(to, "Password reset request",
		fmt.Sprintf("Hi %s, you requested a password reset. Use this link within %s to choose a new password: %s\nIf you did not ask for it you can ignore this email.",
			name, lifetime, link))
}
