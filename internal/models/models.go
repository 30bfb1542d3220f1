package models

import (
	"fmt"
	"time"
)

// Listing structs
type Listing struct {
	ID           string    `json:"id"`
	UID          string    `json:"uid"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	Year         string    `json:"year"`
	KM           string    `json:"km"`
	Price        string    `json:"price"`
	City         string    `json:"city"`
	Cambio       string    `json:"cambio"`
	Transmission string    `json:"transmission"`
	Fuel         string    `json:"fuel"`
	Color        string    `json:"color"`
	Plate        string    `json:"plate"`
	Description  string    `json:"description"`
	Whatsapp     string    `json:"whatsapp"`
	Owner        string    `json:"owner"`
	CreatedAt    time.Time `json:"createdAt"`
	Images       []Image   `json:"images"`
}

// FirstImageURL returns the cover image url, or "" when the listing has no images.
func (l Listing) FirstImageURL() string {
	if len(l.Images) == 0 {
		return ""
	}
	return l.Images[0].URL
}

// Image is a persisted listing photo
type Image struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ImagePath is the blob path of an image owned by uid.
func ImagePath(uid, name string) string {
	return fmt.Sprintf("images/%s/%s", uid, name)
}

// Path reconstructs the blob path from the record.
func (i Image) Path() string {
	return ImagePath(i.UID, i.Name)
}

// Auth structs
type AuthRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// User is the identity behind a session. Name and Email may be unset.
type User struct {
	ID    string  `json:"uid"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// DisplayName returns the name or "" when unset.
func (u User) DisplayName() string {
	if u.Name == nil {
		return ""
	}
	return *u.Name
}

// StringPtr returns nil for "" so optional identity fields stay unset.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
