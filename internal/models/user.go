package models

// User is a row of the ticket app's user table. signalbox reads it to
// resolve display attributes; the identity subsystem owns writes.
type User struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Username       string `gorm:"size:64;uniqueIndex"`
	Email          string `gorm:"size:120;index"`
	Role           string `gorm:"size:20"`
	ProfilePicture string `gorm:"size:255"`
}

// Avatar returns the uploaded picture path, or the role's default picture.
func (u User) Avatar() string {
	if u.ProfilePicture != "" {
		return "uploads/" + u.ProfilePicture
	}
	return "profile_" + u.Role + ".png"
}
