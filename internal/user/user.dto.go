package user

import "time"

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type VerifyOTPRequest struct {
	OTP string `json:"otp"`
}

type TwoFactorEnrollment struct {
	Secret       string `json:"secret"`
	OTPAuthURL   string `json:"otpauth_url"`
	QRCodeBase64 string `json:"qr_code_base64"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CoinsResponse struct {
	Coins int `json:"coins"`
}
