package models

// TokenPayload is data carried by API token
type TokenPayload struct {
	UserID   int64
	Username string
}
