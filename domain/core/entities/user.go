package entities

import "time"

// User is the profile record kept alongside posts. NotesCount and VotesCount
// are maintained by the write batches of posts and votes.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	NotesCount   int       `json:"notesCount"`
	VotesCount   int       `json:"votesCount"`
}

// AsAuthor returns the denormalized author snapshot for content the user creates.
func (u User) AsAuthor() Author {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = "Anonymous"
	}
	return Author{ID: u.ID, Name: name, AvatarURL: u.AvatarURL}
}
