package models

// UserRecord is the persisted form of a user. PasswordHash is serialised under
// "password" so existing user files keep loading.
type UserRecord struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password"`
	Email        string `json:"email"`
}

// UserPatch carries a partial update. Nil fields keep their current value.
type UserPatch struct {
	Username *string
	Email    *string
}

// Apply merges the patch over r and returns the result.
func (p UserPatch) Apply(r UserRecord) UserRecord {
	if p.Username != nil {
		r.Username = *p.Username
	}
	if p.Email != nil {
		r.Email = *p.Email
	}
	return r
}
