package dynamodb

import (
	"fmt"
	"time"

	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	"locallens/domain/geo"
)

// Timestamps are stored in a fixed-width UTC layout so that string order
// matches time order inside sort keys.
const sortableTime = "2006-01-02T15:04:05.000Z"

// maxMillis is the largest 13-digit millisecond value, used to invert
// creation times so that newer posts sort first.
const maxMillis int64 = 9999999999999

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(sortableTime, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// activeSortKey orders the ACTIVE index by expiry ascending, then creation
// time descending, then id.
func activeSortKey(p entities.Post) string {
	return fmt.Sprintf("%s#%013d#%s", formatTime(p.ExpiresAt), maxMillis-p.CreatedAt.UnixMilli(), p.ID)
}

// expiredBefore is the lower bound of the ACTIVE index at now. Every key
// whose expiry equals now sorts below it.
func expiredBefore(now time.Time) string {
	return formatTime(now) + "#~"
}

func createdSortKey(t time.Time, id string) string {
	return fmt.Sprintf("%s#%s", formatTime(t), id)
}

// postItem represents the DynamoDB item structure for a post
type postItem struct {
	PK            string   `dynamodbav:"PK"`
	SK            string   `dynamodbav:"SK"`
	GSI1PK        string   `dynamodbav:"GSI1PK,omitempty"` // ACTIVE while the post is live
	GSI1SK        string   `dynamodbav:"GSI1SK,omitempty"`
	GSI2PK        string   `dynamodbav:"GSI2PK"` // AUTHOR#<id>
	GSI2SK        string   `dynamodbav:"GSI2SK"`
	EntityType    string   `dynamodbav:"EntityType"`
	PostID        string   `dynamodbav:"PostID"`
	AuthorID      string   `dynamodbav:"AuthorID"`
	AuthorName    string   `dynamodbav:"AuthorName"`
	AuthorAvatar  string   `dynamodbav:"AuthorAvatar,omitempty"`
	Content       string   `dynamodbav:"Content"`
	ImageURL      string   `dynamodbav:"ImageURL,omitempty"`
	Latitude      float64  `dynamodbav:"Latitude"`
	Longitude     float64  `dynamodbav:"Longitude"`
	CellID        string   `dynamodbav:"CellID"`
	CellPrefixes  []string `dynamodbav:"CellPrefixes"`
	CreatedAt     string   `dynamodbav:"CreatedAt"`
	ExpiresAt     string   `dynamodbav:"ExpiresAt"`
	Upvotes       int      `dynamodbav:"Upvotes"`
	Downvotes     int      `dynamodbav:"Downvotes"`
	CommentsCount int      `dynamodbav:"CommentsCount"`
	IsActive      bool     `dynamodbav:"IsActive"`
}

func newPostItem(p entities.Post) postItem {
	item := postItem{
		PK:            postPK(p.ID),
		SK:            skMetadata,
		GSI2PK:        fmt.Sprintf("AUTHOR#%s", p.AuthorID),
		GSI2SK:        createdSortKey(p.CreatedAt, p.ID),
		EntityType:    "POST",
		PostID:        p.ID,
		AuthorID:      p.AuthorID,
		AuthorName:    p.AuthorName,
		AuthorAvatar:  p.AuthorAvatar,
		Content:       p.Content,
		ImageURL:      p.ImageURL,
		Latitude:      p.Location.Latitude,
		Longitude:     p.Location.Longitude,
		CellID:        p.CellID,
		CellPrefixes:  p.CellPrefixes,
		CreatedAt:     formatTime(p.CreatedAt),
		ExpiresAt:     formatTime(p.ExpiresAt),
		Upvotes:       p.Upvotes,
		Downvotes:     p.Downvotes,
		CommentsCount: p.CommentsCount,
		IsActive:      p.IsActive,
	}
	if p.IsActive {
		item.GSI1PK = gsiActive
		item.GSI1SK = activeSortKey(p)
	}
	return item
}

func (i postItem) toEntity() entities.Post {
	return entities.Post{
		ID:            i.PostID,
		AuthorID:      i.AuthorID,
		AuthorName:    i.AuthorName,
		AuthorAvatar:  i.AuthorAvatar,
		Content:       i.Content,
		ImageURL:      i.ImageURL,
		Location:      geo.Point{Latitude: i.Latitude, Longitude: i.Longitude},
		CellID:        i.CellID,
		CellPrefixes:  i.CellPrefixes,
		CreatedAt:     parseTime(i.CreatedAt),
		ExpiresAt:     parseTime(i.ExpiresAt),
		Upvotes:       i.Upvotes,
		Downvotes:     i.Downvotes,
		CommentsCount: i.CommentsCount,
		IsActive:      i.IsActive,
	}
}

// voteItem lives in the post's partition, one per voter.
type voteItem struct {
	PK         string `dynamodbav:"PK"` // POST#<post>
	SK         string `dynamodbav:"SK"` // VOTE#<voter>
	EntityType string `dynamodbav:"EntityType"`
	VoteID     string `dynamodbav:"VoteID"`
	VoterID    string `dynamodbav:"VoterID"`
	PostID     string `dynamodbav:"PostID"`
	Direction  string `dynamodbav:"Direction"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

func newVoteItem(v entities.Vote) voteItem {
	return voteItem{
		PK:         postPK(v.PostID),
		SK:         voteSK(v.VoterID),
		EntityType: "VOTE",
		VoteID:     v.ID,
		VoterID:    v.VoterID,
		PostID:     v.PostID,
		Direction:  string(v.Direction),
		CreatedAt:  formatTime(v.CreatedAt),
	}
}

func (i voteItem) toEntity() entities.Vote {
	return entities.Vote{
		ID:        i.VoteID,
		VoterID:   i.VoterID,
		PostID:    i.PostID,
		Direction: valueobjects.VoteDirection(i.Direction),
		CreatedAt: parseTime(i.CreatedAt),
	}
}

type commentItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	GSI2PK       string `dynamodbav:"GSI2PK"` // POSTCOMMENTS#<post>
	GSI2SK       string `dynamodbav:"GSI2SK"`
	EntityType   string `dynamodbav:"EntityType"`
	CommentID    string `dynamodbav:"CommentID"`
	PostID       string `dynamodbav:"PostID"`
	AuthorID     string `dynamodbav:"AuthorID"`
	AuthorName   string `dynamodbav:"AuthorName"`
	AuthorAvatar string `dynamodbav:"AuthorAvatar,omitempty"`
	Content      string `dynamodbav:"Content"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
	Upvotes      int    `dynamodbav:"Upvotes"`
	Downvotes    int    `dynamodbav:"Downvotes"`
}

func newCommentItem(c entities.Comment) commentItem {
	return commentItem{
		PK:           commentPK(c.ID),
		SK:           skMetadata,
		GSI2PK:       fmt.Sprintf("POSTCOMMENTS#%s", c.PostID),
		GSI2SK:       createdSortKey(c.CreatedAt, c.ID),
		EntityType:   "COMMENT",
		CommentID:    c.ID,
		PostID:       c.PostID,
		AuthorID:     c.AuthorID,
		AuthorName:   c.AuthorName,
		AuthorAvatar: c.AuthorAvatar,
		Content:      c.Content,
		CreatedAt:    formatTime(c.CreatedAt),
		Upvotes:      c.Upvotes,
		Downvotes:    c.Downvotes,
	}
}

func (i commentItem) toEntity() entities.Comment {
	return entities.Comment{
		ID:           i.CommentID,
		PostID:       i.PostID,
		AuthorID:     i.AuthorID,
		AuthorName:   i.AuthorName,
		AuthorAvatar: i.AuthorAvatar,
		Content:      i.Content,
		CreatedAt:    parseTime(i.CreatedAt),
		Upvotes:      i.Upvotes,
		Downvotes:    i.Downvotes,
	}
}

type userItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	UserID       string `dynamodbav:"UserID"`
	Username     string `dynamodbav:"Username"`
	Email        string `dynamodbav:"Email"`
	DisplayName  string `dynamodbav:"DisplayName"`
	AvatarURL    string `dynamodbav:"AvatarURL,omitempty"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
	LastActiveAt string `dynamodbav:"LastActiveAt"`
	NotesCount   int    `dynamodbav:"NotesCount"`
	VotesCount   int    `dynamodbav:"VotesCount"`
}

func (i userItem) toEntity() entities.User {
	return entities.User{
		ID:           i.UserID,
		Username:     i.Username,
		Email:        i.Email,
		DisplayName:  i.DisplayName,
		AvatarURL:    i.AvatarURL,
		CreatedAt:    parseTime(i.CreatedAt),
		LastActiveAt: parseTime(i.LastActiveAt),
		NotesCount:   i.NotesCount,
		VotesCount:   i.VotesCount,
	}
}
