package domain

// User is the persisted identity next to the token. The client never
// mutates it; it is written at login and cleared with the session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
