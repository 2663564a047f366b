package email

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Links builds the URLs placed in outgoing mail.
type Links struct {
	BaseURL string
}

func (l Links) build(path, token string) string {
	base := strings.TrimRight(l.BaseURL, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}

// InvitationLink is where an invitee accepts.
func (l Links) InvitationLink(token string) string { return l.build("/invitations/accept", token) }

// PasswordResetLink is where a user picks a new password.
func (l Links) PasswordResetLink(token string) string { return l.build("/password/reset", token) }

// InvitationMessage returns the subject and body of an invitation email.
func InvitationMessage(orgName, inviterEmail, link string, now, expiresAt time.Time) (subject, body string) {
	subject = fmt.Sprintf("You're invited to join %s", orgName)
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\n")
	if inviterEmail != "" {
		fmt.Fprintf(&b, "%s has invited you to join %s.\n\n", inviterEmail, orgName)
	} else {
		fmt.Fprintf(&b, "You have been invited to join %s.\n\n", orgName)
	}
	fmt.Fprintf(&b, "Accept the invitation here:\n\n%s\n\n", link)
	fmt.Fprintf(&b, "The link expires %s (%s).\n",
		humanize.RelTime(expiresAt, now, "ago", "from now"), expiresAt.UTC().Format(time.RFC1123))
	return subject, b.String()
}

// PasswordResetMessage returns the subject and body of a password-reset email.
func PasswordResetMessage(link string, ttl time.Duration) (subject, body string) {
	subject = "Reset your password"
	now := time.Now()
	body = fmt.Sprintf("Hello,\n\nSomeone asked to reset the password for this account. "+
		"If that was you, choose a new password here:\n\n%s\n\n"+
		"The link can be used once and expires %s. If you did not ask for a reset you can ignore this email.\n",
		link, humanize.RelTime(now.Add(ttl), now, "ago", "from now"))
	return subject, body
}
