package auth

import "fmt"

const signature = "Best regards,\nFinance Tracker Team"

func verifyEmail(name, link string) (subject, body string) {
	return "Verify your email - Finance Tracker", fmt.Sprintf(
		"Hello %s,\n\nWelcome to Finance Tracker! Please verify your email by clicking the link below:\n\n%s\n\nThis link expires in 24 hours.\n\n%s",
		greetingName(name), link, signature)
}

func resetEmail(name, link string) (subject, body string) {
	return "Password Reset - Finance Tracker", fmt.Sprintf(
		"Hello %s,\n\nYou requested to reset your password. Click the link below to reset it:\n\n%s\n\nThis link expires in 1 hour.\n\nIf you didn't request this, please ignore this email.\n\n%s",
		greetingName(name), link, signature)
}

func codeEmail(code string) (subject, body string) {
	return "Your verification code", fmt.Sprintf("Your code is %s. It expires in 10 minutes.", code)
}

func codeSMS(code string) string {
	return fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
}

func greetingName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
