package models

// UserView is the read projection of a user.
// It never carries the password hash.
type UserView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ToView projects a stored record onto its public shape.
func ToView(r *UserRecord) *UserView {
	return &UserView{
		ID:       r.ID,
		Username: r.Username,
		Email:    r.Email,
	}
}
