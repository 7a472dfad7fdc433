// Package mailer sends confirmation emails through AWS SES. Sending is
// fire-and-forget from the subscription flow's point of view; a delivery
// failure is logged but never fails the signup.
package mailer
