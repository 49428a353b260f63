package cqrs

type RegisterCommand struct {
	Username string
	Password string
	Email    string
}

// UpdateUserCommand patches a user. Nil fields are left untouched.
type UpdateUserCommand struct {
	UserID   int64
	Username *string
	Email    *string
}

type DeleteUserCommand struct {
	UserID int64
}

type LoginCommand struct {
	Username string
	Password string
}
