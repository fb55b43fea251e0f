package db

// Account is an admin or staff member.
type Account struct {
	ID         int64
	Email      string
	FirstName  string
	LastName   string
	Phone      string
	DOB        string
	Gender     string
	Role       string
	Department string
	PassHash   string
	CreatedAt  int64
}

// Avatar is the image uploaded with a staff account.
type Avatar struct {
	AccountID int64
	Filename  string
	MimeType  string
	Data      []byte
}

// Session binds a cookie token to an account until ExpiresAt.
type Session struct {
	Token     string
	AccountID int64
	CreatedAt int64
	ExpiresAt int64
}
